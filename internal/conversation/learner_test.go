package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ziadkadry99/kisan-mitra/internal/memory"
	"github.com/ziadkadry99/kisan-mitra/internal/metrics"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 5 * time.Millisecond
)

func TestLearner_CloseDrainsWorkers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls atomic.Int32
	facts := newFakeFacts()
	cache := memory.NewFactCache()
	cache.Seed("ravi_s1", nil)

	l := NewLearner(LearnerConfig{
		Extractor: wheatExtractor(&calls),
		Facts:     facts,
		Cache:     cache,
		Workers:   4,
	})
	for range 10 {
		require.True(t, l.Enqueue(LearnJob{UserID: "ravi", SessionID: "ravi_s1", Input: "wheat", Reply: "ok"}))
	}
	l.Close()

	assert.Equal(t, int32(10), calls.Load())
	assert.Len(t, facts.stored("ravi"), 10)
}

func TestLearner_EnqueueAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls atomic.Int32
	l := NewLearner(LearnerConfig{
		Extractor: wheatExtractor(&calls),
		Facts:     newFakeFacts(),
		Cache:     memory.NewFactCache(),
	})
	l.Close()
	l.Close()

	assert.False(t, l.Enqueue(LearnJob{UserID: "ravi", SessionID: "ravi_s1", Input: "wheat"}))
	assert.Zero(t, calls.Load())
}

func TestLearner_DropsWhenQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	blocking := extractorFunc(func(context.Context, string) (string, bool) {
		started <- struct{}{}
		<-release
		return "", false
	})

	m := metrics.New()
	l := NewLearner(LearnerConfig{
		Extractor: blocking,
		Facts:     newFakeFacts(),
		Cache:     memory.NewFactCache(),
		Metrics:   m,
		Workers:   1,
		QueueSize: 1,
	})

	require.True(t, l.Enqueue(LearnJob{SessionID: "a"}))
	<-started
	require.True(t, l.Enqueue(LearnJob{SessionID: "b"}))
	assert.False(t, l.Enqueue(LearnJob{SessionID: "c"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LearningDropped))

	close(release)
	<-started
	l.Close()
}

func TestLearner_StoreFailureSkipsCache(t *testing.T) {
	var calls atomic.Int32
	facts := newFakeFacts()
	facts.addErr = errors.New("index offline")
	cache := memory.NewFactCache()
	cache.Seed("ravi_s1", nil)
	m := metrics.New()

	l := NewLearner(LearnerConfig{
		Extractor: wheatExtractor(&calls),
		Facts:     facts,
		Cache:     cache,
		Metrics:   m,
	})
	l.Enqueue(LearnJob{UserID: "ravi", SessionID: "ravi_s1", Input: "I grow wheat"})
	l.Close()

	got, _ := cache.Get("ravi_s1")
	assert.Empty(t, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LearningErrors.WithLabelValues(metrics.StageStore)))
}

func TestLearner_UnseededSessionNotCached(t *testing.T) {
	var calls atomic.Int32
	facts := newFakeFacts()
	cache := memory.NewFactCache()

	l := NewLearner(LearnerConfig{Extractor: wheatExtractor(&calls), Facts: facts, Cache: cache})
	l.Enqueue(LearnJob{UserID: "ravi", SessionID: "ravi_s9", Input: "I grow wheat"})
	l.Close()

	assert.Equal(t, []string{"Crop: wheat"}, facts.stored("ravi"))
	_, ok := cache.Get("ravi_s9")
	assert.False(t, ok)
}

func TestLearner_NoLostCacheUpdates(t *testing.T) {
	cache := memory.NewFactCache()
	cache.Seed("ravi_s1", []string{"Name: Ravi"})

	distinct := extractorFunc(func(_ context.Context, exchange string) (string, bool) {
		return "fact from " + exchange, true
	})
	l := NewLearner(LearnerConfig{
		Extractor: distinct,
		Facts:     newFakeFacts(),
		Cache:     cache,
		Workers:   8,
		QueueSize: 256,
	})

	const n = 100
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Enqueue(LearnJob{UserID: "ravi", SessionID: "ravi_s1", Input: fmt.Sprint(i)})
		}()
	}
	wg.Wait()
	l.Close()

	got, ok := cache.Get("ravi_s1")
	require.True(t, ok)
	assert.Len(t, got, n+1)
}

func TestLearner_JobTimeout(t *testing.T) {
	waitForDeadline := extractorFunc(func(ctx context.Context, _ string) (string, bool) {
		<-ctx.Done()
		return "", false
	})
	l := NewLearner(LearnerConfig{
		Extractor: waitForDeadline,
		Facts:     newFakeFacts(),
		Cache:     memory.NewFactCache(),
		Timeout:   20 * time.Millisecond,
	})

	start := time.Now()
	l.Enqueue(LearnJob{SessionID: "s"})
	l.Close()
	assert.Less(t, time.Since(start), testTimeout)
}
