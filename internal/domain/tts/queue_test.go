package tts

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"companion-server-go/internal/domain/chat/emotion"
	platformtest "companion-server-go/internal/platform/testing"
)

// blockingSynth 阻塞直到放行，用于观测并发上限
type blockingSynth struct {
	release  chan struct{}
	inFlight int64
	maxSeen  int64
}

func (s *blockingSynth) Synthesize(ctx context.Context, text, voiceID string, params VoiceParams) (*Synthesis, error) {
	cur := atomic.AddInt64(&s.inFlight, 1)
	for {
		prev := atomic.LoadInt64(&s.maxSeen)
		if cur <= prev || atomic.CompareAndSwapInt64(&s.maxSeen, prev, cur) {
			break
		}
	}
	defer atomic.AddInt64(&s.inFlight, -1)

	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Synthesis{Audio: []byte("a"), Backend: "stub"}, nil
}

// collectSink 收集结果
type collectSink struct {
	mu      sync.Mutex
	results []Result
	got     chan struct{}
}

func newCollectSink() *collectSink {
	return &collectSink{got: make(chan struct{}, 128)}
}

func (s *collectSink) OnSynthesisResult(res Result) {
	s.mu.Lock()
	s.results = append(s.results, res)
	s.mu.Unlock()
	s.got <- struct{}{}
}

func (s *collectSink) waitFor(t *testing.T, n int) []Result {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-s.got:
		case <-deadline:
			t.Fatalf("timed out waiting for %d results, got %d", n, i)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.results...)
}

func TestQueue_ConcurrencyBound(t *testing.T) {
	logger := platformtest.SetupTestLogger(t)
	synth := &blockingSynth{release: make(chan struct{})}
	sink := newCollectSink()

	q := NewQueue(synth, sink, QueueConfig{MaxConcurrent: 2}, logger)
	defer q.Stop()

	const total = 8
	for i := 1; i <= total; i++ {
		q.Enqueue(Task{SessionID: "s1", Index: i, Text: "テスト", Emotion: emotion.Neutral})
	}

	// 等待工作协程占满并发额度
	waitUntil(t, func() bool { return atomic.LoadInt64(&synth.inFlight) == 2 })
	close(synth.release)

	results := sink.waitFor(t, total)
	if got := atomic.LoadInt64(&synth.maxSeen); got > 2 {
		t.Errorf("max in-flight calls = %d, exceeds limit 2", got)
	}

	seen := make(map[int]bool)
	for _, res := range results {
		seen[res.Index] = true
		if res.Audio == nil {
			t.Errorf("result %d missing audio", res.Index)
		}
	}
	for i := 1; i <= total; i++ {
		if !seen[i] {
			t.Errorf("no result delivered for task %d", i)
		}
	}
}

// panicSynth 指定下标panic，其余正常
type panicSynth struct {
	panicOn string
}

func (s *panicSynth) Synthesize(ctx context.Context, text, voiceID string, params VoiceParams) (*Synthesis, error) {
	if text == s.panicOn {
		panic("backend exploded")
	}
	return &Synthesis{Audio: []byte("ok"), Backend: "stub"}, nil
}

func TestQueue_PanicDegradesToTextOnly(t *testing.T) {
	logger := platformtest.SetupTestLogger(t)
	sink := newCollectSink()

	q := NewQueue(&panicSynth{panicOn: "爆発"}, sink, QueueConfig{MaxConcurrent: 1}, logger)
	defer q.Stop()

	q.Enqueue(Task{SessionID: "s1", Index: 1, Text: "正常"})
	q.Enqueue(Task{SessionID: "s1", Index: 2, Text: "爆発"})
	q.Enqueue(Task{SessionID: "s1", Index: 3, Text: "続き"})

	results := sink.waitFor(t, 3)

	byIndex := make(map[int]Result)
	for _, res := range results {
		byIndex[res.Index] = res
	}
	if byIndex[2].Audio != nil {
		t.Error("panicking task should degrade to nil audio")
	}
	if byIndex[1].Audio == nil || byIndex[3].Audio == nil {
		t.Error("tasks around the panic should still produce audio")
	}
}

// failSynth 总是返回失败
type failSynth struct{}

func (failSynth) Synthesize(ctx context.Context, text, voiceID string, params VoiceParams) (*Synthesis, error) {
	return nil, ErrAllBackendsFailed
}

func TestQueue_FailureStillEmitsResult(t *testing.T) {
	logger := platformtest.SetupTestLogger(t)
	sink := newCollectSink()

	q := NewQueue(failSynth{}, sink, QueueConfig{MaxConcurrent: 2}, logger)
	defer q.Stop()

	q.Enqueue(Task{SessionID: "s1", Index: 1, Text: "こんにちは", Emotion: emotion.Happy})

	results := sink.waitFor(t, 1)
	if results[0].Audio != nil {
		t.Error("expected nil audio on total failure")
	}
	if results[0].Index != 1 || results[0].Emotion != emotion.Happy {
		t.Errorf("result should keep task metadata: %+v", results[0])
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
