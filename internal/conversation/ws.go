package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ziadkadry99/kisan-mitra/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame types sent to WebSocket clients.
const (
	FrameFragment = "fragment"
	FrameDone     = "done"
	FrameError    = "error"
)

type wsRequest struct {
	Message string `json:"message"`
}

type wsFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// inbound is a decoded client frame or the reason it could not be decoded.
type inbound struct {
	message string
	invalid bool
}

func handleWebSocket(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user_id")
		sessionID := chi.URLParam(r, "session_id")
		logger := logging.Component(r.Context(), "ws").With().
			Str("user_id", userID).
			Str("session_id", sessionID).
			Logger()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket upgrade")
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		incoming := make(chan inbound)
		go readFrames(ctx, cancel, conn, incoming)

		for {
			var in inbound
			select {
			case <-ctx.Done():
				return
			case m, ok := <-incoming:
				if !ok {
					return
				}
				in = m
			}

			if in.invalid {
				sendFrame(conn, wsFrame{Type: FrameError, Content: "invalid message format"}, logger)
				continue
			}

			reply, err := engine.HandleTurn(ctx, Turn{
				UserID:    userID,
				SessionID: sessionID,
				Input:     in.message,
			}, func(fragment string) error {
				return conn.WriteJSON(wsFrame{Type: FrameFragment, Content: fragment})
			})
			switch {
			case errors.Is(err, ErrTurnAborted):
				logger.Info().Err(err).Msg("turn aborted, client gone")
				return
			case err != nil:
				logger.Error().Err(err).Msg("turn failed")
				sendFrame(conn, wsFrame{Type: FrameError, Content: clientMessage(err)}, logger)
				continue
			}
			sendFrame(conn, wsFrame{Type: FrameDone, Content: reply}, logger)
		}
	}
}

// readFrames is the connection's only reader. It cancels ctx when the client
// disconnects so an in-flight turn stops.
func readFrames(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out chan<- inbound) {
	defer close(out)
	defer cancel()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.FromCtx(ctx).Debug().Err(err).Msg("websocket read")
			}
			return
		}

		var req wsRequest
		var in inbound
		if err := json.Unmarshal(msg, &req); err != nil {
			in.invalid = true
		} else {
			in.message = req.Message
		}

		select {
		case out <- in:
		case <-ctx.Done():
			return
		}
	}
}

func sendFrame(conn *websocket.Conn, f wsFrame, logger zerolog.Logger) {
	if err := conn.WriteJSON(f); err != nil {
		logger.Debug().Err(err).Msg("websocket write")
	}
}
