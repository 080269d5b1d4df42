package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ziadkadry99/kisan-mitra/internal/history"
	"github.com/ziadkadry99/kisan-mitra/internal/logging"
	"github.com/ziadkadry99/kisan-mitra/internal/memory"
)

// RouteTimeout bounds every non-WebSocket request.
const RouteTimeout = 120 * time.Second

// SessionBrowser reads stored sessions for the history endpoints.
type SessionBrowser interface {
	ReadAll(ctx context.Context, sessionID string) ([]history.Message, error)
	ListSessionsForUser(ctx context.Context, userID string) ([]string, error)
}

// RegisterRoutes mounts the farmer query API.
func RegisterRoutes(r chi.Router, engine *Engine, sessions SessionBrowser) {
	r.Route("/farmer_query", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(RouteTimeout))
			r.Post("/chat", handleChat(engine))
			r.Get("/session/{session_id}/history", handleSessionHistory(sessions))
			r.Get("/allSession_user/{user_id}", handleUserSessions(sessions))
			r.Get("/facts/{user_id}", handleFacts(engine))
		})
		r.Get("/ws/{user_id}/{session_id}", handleWebSocket(engine))
	})
}

type chatRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	// Stream is accepted for compatibility; /chat always answers in one piece.
	Stream bool `json:"stream"`
}

type chatResponse struct {
	Response string `json:"response"`
}

func handleChat(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		reply, err := engine.HandleTurn(r.Context(), Turn{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Input:     req.Message,
		}, nil)
		if err != nil {
			status := statusFor(err)
			if status >= http.StatusInternalServerError {
				logging.FromCtx(r.Context()).Error().Err(err).Str("session_id", req.SessionID).Msg("chat turn failed")
			}
			writeError(w, status, clientMessage(err))
			return
		}

		writeJSON(w, http.StatusOK, chatResponse{Response: reply})
	}
}

type historyEntry struct {
	Role    history.Role `json:"role"`
	Content string       `json:"content"`
	HTML    string       `json:"html,omitempty"`
}

func handleSessionHistory(sessions SessionBrowser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := sessions.ReadAll(r.Context(), chi.URLParam(r, "session_id"))
		if err != nil {
			logging.FromCtx(r.Context()).Error().Err(err).Msg("read session history")
			writeError(w, http.StatusInternalServerError, msgInternal)
			return
		}

		withHTML := r.URL.Query().Get("format") == "html"
		out := make([]historyEntry, 0, len(msgs))
		for _, m := range msgs {
			e := historyEntry{Role: m.Role, Content: m.Content}
			if withHTML {
				if e.HTML, err = RenderMarkdown(m.Content); err != nil {
					logging.FromCtx(r.Context()).Error().Err(err).Msg("render history")
					writeError(w, http.StatusInternalServerError, msgInternal)
					return
				}
			}
			out = append(out, e)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleUserSessions(sessions SessionBrowser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := sessions.ListSessionsForUser(r.Context(), chi.URLParam(r, "user_id"))
		if err != nil {
			logging.FromCtx(r.Context()).Error().Err(err).Msg("list user sessions")
			writeError(w, http.StatusInternalServerError, msgInternal)
			return
		}
		writeJSON(w, http.StatusOK, ids)
	}
}

func handleFacts(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		facts, err := engine.Facts(r.Context(), chi.URLParam(r, "user_id"), limit)
		if err != nil {
			logging.FromCtx(r.Context()).Error().Err(err).Msg("read facts")
			writeError(w, http.StatusBadGateway, msgFactStore)
			return
		}
		if facts == nil {
			facts = []string{}
		}
		writeJSON(w, http.StatusOK, facts)
	}
}

// Client-facing messages for failures whose detail stays in the logs.
const (
	msgInternal  = "internal error"
	msgModel     = "the assistant is unavailable, please try again"
	msgFactStore = "fact store unavailable"
)

// clientMessage returns the text a client sees for a failed turn. Only
// validation errors are echoed verbatim.
func clientMessage(err error) string {
	var mce *memory.ModelCallError
	switch {
	case errors.Is(err, ErrInvalidTurn):
		return err.Error()
	case errors.As(err, &mce):
		return msgModel
	default:
		return msgInternal
	}
}

// statusFor maps turn errors to HTTP status codes.
func statusFor(err error) int {
	var mce *memory.ModelCallError
	switch {
	case errors.Is(err, ErrInvalidTurn):
		return http.StatusBadRequest
	case errors.As(err, &mce):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
