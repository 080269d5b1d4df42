// Package conversation runs farmer chat turns: fact resolution, prompt
// composition, completion, durable history and background fact learning.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/kisan-mitra/internal/history"
	"github.com/ziadkadry99/kisan-mitra/internal/llm"
	"github.com/ziadkadry99/kisan-mitra/internal/logging"
	"github.com/ziadkadry99/kisan-mitra/internal/memory"
	"github.com/ziadkadry99/kisan-mitra/internal/metrics"
	"github.com/ziadkadry99/kisan-mitra/internal/prompt"
)

var (
	// ErrInvalidTurn is returned for a turn missing its user, session or input.
	ErrInvalidTurn = errors.New("invalid turn")
	// ErrTurnAborted is returned when the caller went away mid-turn. Nothing
	// is persisted for an aborted turn.
	ErrTurnAborted = errors.New("turn aborted")
)

// FactSource reads and writes a farmer's long-term facts.
type FactSource interface {
	GetFacts(ctx context.Context, userID string, limit int) ([]string, error)
	AddFact(ctx context.Context, userID, text string) error
}

// HistoryStore persists session transcripts.
type HistoryStore interface {
	ReadAll(ctx context.Context, sessionID string) ([]history.Message, error)
	AppendExchange(ctx context.Context, sessionID, input, reply string) error
}

// FactExtractor finds at most one new fact in an exchange.
type FactExtractor interface {
	Extract(ctx context.Context, exchange string) (string, bool)
}

// Sink receives reply fragments in order. An error stops the turn.
type Sink func(fragment string) error

// Turn is one farmer message within a session.
type Turn struct {
	UserID    string
	SessionID string
	Input     string
}

// Options tunes the engine.
type Options struct {
	Model               string
	Temperature         float64
	FactLimit           int
	MaxHistoryMessages  int
	StrictSessionPrefix bool
}

// Engine handles conversation turns. It is safe for concurrent use; turns of
// the same session run one at a time.
type Engine struct {
	provider llm.Provider
	facts    FactSource
	history  HistoryStore
	cache    *memory.FactCache
	learner  *Learner
	metrics  *metrics.Metrics
	opts     Options
	locks    *sessionLocks
}

// NewEngine wires an engine. learner and m may be nil.
func NewEngine(provider llm.Provider, facts FactSource, hist HistoryStore, cache *memory.FactCache, learner *Learner, m *metrics.Metrics, opts Options) *Engine {
	if opts.FactLimit <= 0 {
		opts.FactLimit = memory.DefaultFactLimit
	}
	return &Engine{
		provider: provider,
		facts:    facts,
		history:  hist,
		cache:    cache,
		learner:  learner,
		metrics:  m,
		opts:     opts,
		locks:    newSessionLocks(),
	}
}

// HandleTurn answers one turn. With a non-nil sink the reply is streamed
// fragment by fragment before being returned whole; with a nil sink a single
// completion is made. After the exchange is stored a learning job is queued.
func (e *Engine) HandleTurn(ctx context.Context, turn Turn, sink Sink) (string, error) {
	mode := metrics.ModeBlock
	if sink != nil {
		mode = metrics.ModeStream
	}
	start := time.Now()

	reply, err := e.runLocked(ctx, turn, sink)
	e.observe(mode, start, err)
	if err != nil {
		return "", err
	}

	if e.learner != nil {
		e.learner.Enqueue(LearnJob{
			UserID:    turn.UserID,
			SessionID: turn.SessionID,
			Input:     turn.Input,
			Reply:     reply,
		})
	}
	return reply, nil
}

func (e *Engine) validate(turn Turn) error {
	switch {
	case strings.TrimSpace(turn.UserID) == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidTurn)
	case strings.TrimSpace(turn.SessionID) == "":
		return fmt.Errorf("%w: session id is required", ErrInvalidTurn)
	case strings.TrimSpace(turn.Input) == "":
		return fmt.Errorf("%w: message is required", ErrInvalidTurn)
	case e.opts.StrictSessionPrefix && !strings.HasPrefix(turn.SessionID, turn.UserID+"_"):
		return fmt.Errorf("%w: session %q does not belong to user %q", ErrInvalidTurn, turn.SessionID, turn.UserID)
	}
	return nil
}

func (e *Engine) runLocked(ctx context.Context, turn Turn, sink Sink) (string, error) {
	if err := e.validate(turn); err != nil {
		return "", err
	}

	unlock := e.locks.lock(turn.SessionID)
	defer unlock()

	logger := logging.Component(ctx, "conversation").With().
		Str("user_id", turn.UserID).
		Str("session_id", turn.SessionID).
		Logger()

	var (
		facts []string
		hist  []history.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		facts = e.resolveFacts(gctx, turn)
		return nil
	})
	g.Go(func() error {
		var err error
		hist, err = e.history.ReadAll(gctx, turn.SessionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	msgs := prompt.Compose(facts).
		WithHistoryWindow(e.opts.MaxHistoryMessages).
		Messages(hist, turn.Input)
	req := llm.CompletionRequest{
		Model:       e.opts.Model,
		Messages:    msgs,
		Temperature: e.opts.Temperature,
	}

	var (
		reply string
		err   error
	)
	if sink == nil {
		reply, err = e.complete(ctx, req)
	} else {
		reply, err = e.stream(ctx, req, sink)
	}
	if err != nil {
		return "", err
	}

	if err := e.history.AppendExchange(ctx, turn.SessionID, turn.Input, reply); err != nil {
		return "", err
	}

	inTok := llm.EstimateMessageTokens(msgs)
	outTok := llm.EstimateTokens(reply)
	logger.Debug().
		Int("facts", len(facts)).
		Int("history", len(hist)).
		Int("input_tokens", inTok).
		Int("output_tokens", outTok).
		Float64("est_cost_usd", llm.EstimateCost(e.modelName(), inTok, outTok)).
		Msg("turn complete")

	return reply, nil
}

// resolveFacts returns the session's cached facts, populating the cache from
// the fact store on first use. A store failure degrades the current turn to no
// facts and leaves the session unseeded, so the next turn queries the store again.
func (e *Engine) resolveFacts(ctx context.Context, turn Turn) []string {
	if facts, ok := e.cache.Get(turn.SessionID); ok {
		return facts
	}

	facts, err := e.facts.GetFacts(ctx, turn.UserID, e.opts.FactLimit)
	if err != nil {
		if ctx.Err() == nil {
			logger := logging.Component(ctx, "conversation")
			logger.Warn().Err(err).
				Str("user_id", turn.UserID).
				Str("session_id", turn.SessionID).
				Msg("fact store unavailable, continuing without facts")
		}
		return nil
	}

	resolved := e.cache.Seed(turn.SessionID, facts)
	if e.metrics != nil {
		e.metrics.CacheSessions.Set(float64(e.cache.Len()))
	}
	return resolved
}

func (e *Engine) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", ErrTurnAborted, ctx.Err())
		}
		return "", &memory.ModelCallError{Op: "complete", Err: err}
	}
	return resp.Content, nil
}

func (e *Engine) stream(ctx context.Context, req llm.CompletionRequest, sink Sink) (string, error) {
	st, err := e.provider.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", ErrTurnAborted, ctx.Err())
		}
		return "", &memory.ModelCallError{Op: "stream", Err: err}
	}
	defer st.Close()

	var b strings.Builder
	for {
		frag, err := st.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %w", ErrTurnAborted, ctx.Err())
			}
			return "", &memory.ModelCallError{Op: "stream", Err: err}
		}
		if frag == "" {
			continue
		}
		if err := sink(frag); err != nil {
			return "", fmt.Errorf("%w: %w", ErrTurnAborted, err)
		}
		b.WriteString(frag)
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTurnAborted, err)
	}
	return b.String(), nil
}

func (e *Engine) modelName() string {
	if e.opts.Model != "" {
		return e.opts.Model
	}
	return e.provider.Name()
}

func (e *Engine) observe(mode string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.Turns.WithLabelValues(mode, outcome(err)).Inc()
	if err == nil {
		e.metrics.TurnDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}
}

func outcome(err error) string {
	var mce *memory.ModelCallError
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrInvalidTurn):
		return metrics.OutcomeInvalid
	case errors.Is(err, ErrTurnAborted):
		return metrics.OutcomeAborted
	case errors.As(err, &mce):
		return metrics.OutcomeModel
	default:
		return metrics.OutcomeError
	}
}

// Facts returns up to limit stored facts for a user, bypassing the session
// cache.
func (e *Engine) Facts(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = e.opts.FactLimit
	}
	return e.facts.GetFacts(ctx, userID, limit)
}
