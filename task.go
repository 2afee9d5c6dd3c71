package gtaaudio

import (
	"sync"

	"github.com/google/uuid"
)

// ProgressFunc 接收 (已处理, 总数). 同一操作内的回调单调不减, 并以 processed == total 结束.
type ProgressFunc func(processed, total int64)

func (p ProgressFunc) report(processed, total int64) {
	if p != nil {
		p(processed, total)
	}
}

// Progress 是一次进度快照.
type Progress struct {
	Processed int64
	Total     int64
}

// Task 在独立的 goroutine 上运行一个耗时操作 (加载 / 批量导出 / 重建),
// 通过 channel 推送进度, 结束后通过 Wait 返回结果.
// 同一个容器同一时间只能有一个 Task 在运行, 由调用方保证.
type Task struct {
	ID string

	progress chan Progress
	done     chan struct{}
	err      error

	mu   sync.Mutex
	last Progress
}

// progressBuffer 是进度 channel 的缓冲大小. 消费方来不及读取时, 较旧的中间进度会被丢弃.
const progressBuffer = 64

// Start 启动一个 Task. fn 收到的 ProgressFunc 可以安全地被多次调用.
func Start(fn func(progress ProgressFunc) error) *Task {
	t := &Task{
		ID:       uuid.NewString(),
		progress: make(chan Progress, progressBuffer),
		done:     make(chan struct{}),
	}
	go t.run(fn)
	return t
}

func (t *Task) run(fn func(progress ProgressFunc) error) {
	defer close(t.done)
	defer close(t.progress)
	t.err = fn(t.publish)
}

// publish 记录并推送一次进度. channel 满时丢弃最旧的一个值, 保证最新的值 (包括最终值) 总能送达.
func (t *Task) publish(processed, total int64) {
	p := Progress{Processed: processed, Total: total}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = p

	select {
	case t.progress <- p:
		return
	default:
	}
	select {
	case <-t.progress:
	default:
	}
	select {
	case t.progress <- p:
	default:
	}
}

// Progress 返回进度 channel. 操作结束后 channel 被关闭.
func (t *Task) Progress() <-chan Progress {
	return t.progress
}

// Last 返回最近一次上报的进度.
func (t *Task) Last() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Done 在操作结束时关闭.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait 阻塞直到操作结束, 返回其错误.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}
