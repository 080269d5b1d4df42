package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ziadkadry99/kisan-mitra/internal/logging"
	"github.com/ziadkadry99/kisan-mitra/internal/memory"
	"github.com/ziadkadry99/kisan-mitra/internal/metrics"
)

const (
	defaultLearnerWorkers = 2
	defaultLearnerQueue   = 128
	defaultLearnerTimeout = 30 * time.Second
)

// LearnJob is one completed exchange awaiting fact extraction.
type LearnJob struct {
	UserID    string
	SessionID string
	Input     string
	Reply     string
}

// LearnerConfig configures the learning pool.
type LearnerConfig struct {
	Extractor FactExtractor
	Facts     FactSource
	Cache     *memory.FactCache
	Metrics   *metrics.Metrics

	// Workers is the number of background workers.
	Workers int

	// QueueSize is the capacity of the job channel. Jobs beyond it are dropped.
	QueueSize int

	// Timeout bounds each job, extraction and store write together.
	Timeout time.Duration

	Logger zerolog.Logger
}

// Learner extracts facts from finished exchanges off the request path.
type Learner struct {
	cfg    LearnerConfig
	queue  chan LearnJob
	wg     sync.WaitGroup
	base   context.Context
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewLearner starts the learner's workers.
func NewLearner(cfg LearnerConfig) *Learner {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultLearnerWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultLearnerQueue
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultLearnerTimeout
	}

	logger := cfg.Logger.With().Str("component", "learner").Logger()
	l := &Learner{
		cfg:    cfg,
		queue:  make(chan LearnJob, cfg.QueueSize),
		base:   logging.WithLogger(context.Background(), cfg.Logger),
		logger: logger,
	}

	l.wg.Add(cfg.Workers)
	for i := range cfg.Workers {
		go l.worker(i)
	}
	return l
}

// Enqueue submits a job. It returns false when the queue is full or the
// learner is closed; the job is dropped in both cases.
func (l *Learner) Enqueue(job LearnJob) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.logger.Warn().Str("session_id", job.SessionID).Msg("learner closed, job dropped")
		return false
	}

	select {
	case l.queue <- job:
		l.logger.Debug().Str("session_id", job.SessionID).Msg("learning job queued")
		return true
	default:
		l.logger.Error().Str("session_id", job.SessionID).Msg("learning queue full, job dropped")
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.LearningDropped.Inc()
		}
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (l *Learner) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()
}

func (l *Learner) worker(id int) {
	defer l.wg.Done()
	l.logger.Debug().Int("worker_id", id).Msg("worker started")

	for job := range l.queue {
		l.process(job)
	}

	l.logger.Debug().Int("worker_id", id).Msg("worker stopped")
}

func (l *Learner) process(job LearnJob) {
	ctx, cancel := context.WithTimeout(l.base, l.cfg.Timeout)
	defer cancel()

	fact, ok := l.cfg.Extractor.Extract(ctx, memory.FormatExchange(job.Input, job.Reply))
	if !ok {
		return
	}

	if err := l.cfg.Facts.AddFact(ctx, job.UserID, fact); err != nil {
		l.logger.Error().Err(err).
			Str("user_id", job.UserID).
			Str("session_id", job.SessionID).
			Msg("storing learned fact failed")
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.LearningErrors.WithLabelValues(metrics.StageStore).Inc()
		}
		return
	}

	l.cfg.Cache.Add(job.SessionID, fact)
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.FactsLearned.Inc()
	}
	l.logger.Info().
		Str("user_id", job.UserID).
		Str("session_id", job.SessionID).
		Str("fact", fact).
		Msg("fact learned")
}
