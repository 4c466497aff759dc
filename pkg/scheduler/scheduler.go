package scheduler

import (
	"context"
	"sync"
	"time"
)

type Job interface{ Run(ctx context.Context) }

type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }

// Task 单个可取消的周期任务句柄
type Task struct {
	cancel context.CancelFunc
	once   sync.Once
}

// Stop 停止任务，幂等
func (t *Task) Stop() { t.once.Do(t.cancel) }

// Scheduler 周期任务调度器；Stop 之后所有任务退出
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{ctx: ctx, cancel: cancel}
}

func (s *Scheduler) Stop() { s.cancel() }

// Every 启动周期任务，返回句柄用于单独取消
func (s *Scheduler) Every(d time.Duration, job Job) *Task {
	ctx, cancel := context.WithCancel(s.ctx)
	task := &Task{cancel: cancel}
	go loopEvery(ctx, d, job)
	return task
}

// OnceAfter 延迟一次性任务
func (s *Scheduler) OnceAfter(d time.Duration, job Job) *Task {
	ctx, cancel := context.WithCancel(s.ctx)
	task := &Task{cancel: cancel}
	go onceAfter(ctx, d, job)
	return task
}

func loopEvery(ctx context.Context, d time.Duration, job Job) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			job.Run(ctx)
		}
	}
}

func onceAfter(ctx context.Context, d time.Duration, job Job) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(d):
		job.Run(ctx)
	}
}
