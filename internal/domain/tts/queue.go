package tts

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"companion-server-go/internal/platform/logging"
)

const taskTimeout = 90 * time.Second

// QueueConfig 队列参数
type QueueConfig struct {
	// MaxConcurrent 同时在途的合成调用上限
	MaxConcurrent int
	// WarnDepth 积压超过该深度时告警。入队本身不限量，没有背压。
	WarnDepth int
}

// Queue 合成队列。接收任务不阻塞，由监督协程按并发上限派发给工作协程。
// 进程内单例，所有会话共用，首次入队时惰性启动。
type Queue struct {
	synth  Synthesizer
	sink   ResultSink
	logger *logging.Logger

	maxConcurrent int64
	warnDepth     int
	sem           *semaphore.Weighted

	mu      sync.Mutex
	backlog []Task

	notify  chan struct{}
	started atomic.Bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewQueue(synth Synthesizer, sink ResultSink, cfg QueueConfig, logger *logging.Logger) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.WarnDepth <= 0 {
		cfg.WarnDepth = 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		synth:         synth,
		sink:          sink,
		logger:        logger,
		maxConcurrent: int64(cfg.MaxConcurrent),
		warnDepth:     cfg.WarnDepth,
		sem:           semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		notify:        make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Enqueue 非阻塞入队。积压无上限，调用方不要依赖背压。
func (q *Queue) Enqueue(task Task) {
	q.EnsureStarted()

	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	q.backlog = append(q.backlog, task)
	depth := len(q.backlog)
	q.mu.Unlock()

	if depth > q.warnDepth {
		q.logger.WarnTag("队列", "合成积压 %d 条，超过告警阈值 %d", depth, q.warnDepth)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// EnsureStarted 启动监督协程，幂等
func (q *Queue) EnsureStarted() {
	if q.started.CompareAndSwap(false, true) {
		q.wg.Add(1)
		go q.supervise()
		q.logger.InfoTag("队列", "合成队列已启动，并发上限 %d", q.maxConcurrent)
	}
}

// Depth 当前积压深度
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Stop 停止派发并等待在途任务结束
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.cancel()
		if q.started.Load() {
			q.wg.Wait()
		}
	})
}

func (q *Queue) supervise() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.notify:
		}

		for {
			task, ok := q.pop()
			if !ok {
				break
			}
			if err := q.sem.Acquire(q.ctx, 1); err != nil {
				return
			}
			q.wg.Add(1)
			go q.runTask(task)
		}
	}
}

func (q *Queue) pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.backlog) == 0 {
		return Task{}, false
	}
	task := q.backlog[0]
	q.backlog = q.backlog[1:]
	return task, true
}

// runTask 执行单个合成任务。后端全败或panic都降级为无音频结果，
// 事件照常送出，队列继续处理后续任务。
func (q *Queue) runTask(task Task) {
	defer q.wg.Done()
	defer q.sem.Release(1)

	res := Result{
		SessionID: task.SessionID,
		Index:     task.Index,
		Text:      task.Text,
		Emotion:   task.Emotion,
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				q.logger.ErrorTag("队列", "合成任务 %d panic: %v", task.Index, r)
			}
		}()

		ctx, cancel := context.WithTimeout(q.ctx, taskTimeout)
		defer cancel()

		syn, err := q.synth.Synthesize(ctx, task.Text, task.VoiceID, DefaultVoiceParams())
		if err != nil {
			q.logger.InfoTTS("任务 %d 合成失败，降级为纯文本: %v", task.Index, err)
			return
		}
		res.Audio = syn.Audio
		res.Backend = syn.Backend
	}()

	q.sink.OnSynthesisResult(res)
}
