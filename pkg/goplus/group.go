package goplus

import (
	"sync"
	"sync/atomic"
)

var (
	defaultGroup     *Group
	defaultGroupOnce sync.Once
)

// DefaultGroup 进程级的协程组，关闭时可统一等待
func DefaultGroup() *Group {
	defaultGroupOnce.Do(func() {
		defaultGroup = &Group{}
	})
	return defaultGroup
}

// Go 在默认协程组中启动 fn，panic 会被记录而不是让进程退出
func Go(fn func()) {
	DefaultGroup().Go(fn)
}

// Wait 等待默认协程组结束
func Wait() {
	DefaultGroup().Wait()
}

// Group 带计数和 panic 恢复的 WaitGroup
type Group struct {
	wg      sync.WaitGroup
	running atomic.Int64
}

func (g *Group) Go(fn func()) {
	g.running.Add(1)
	g.wg.Add(1)

	go func() {
		defer func() {
			g.running.Add(-1)
			g.wg.Done()
		}()
		defer Recover()

		fn()
	}()
}

// Running 当前运行中的协程数
func (g *Group) Running() int64 {
	return g.running.Load()
}

func (g *Group) Wait() {
	g.wg.Wait()
}
