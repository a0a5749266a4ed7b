package ownership

import (
	"context"
	"sync"
)

// Continuation 探测完成后在同一 goroutine 中继续执行（例如解析预览）。
// live 在本次运行被取代或取消后返回 false，调用方应在应用结果前检查。
type Continuation func(ctx context.Context, res Result, live func() bool)

// Prober 的最小抽象，便于测试替换
type probeRunner interface {
	Probe(ctx context.Context, req Request) Result
}

// Flight 单侧的单飞探测：
// 与正在运行的探测输入相同则丢弃；输入不同则取消旧的并启动新的，旧结果到达时被丢弃。
type Flight struct {
	prober probeRunner

	mu      sync.Mutex
	gen     uint64
	running bool
	current Request
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewFlight(prober probeRunner) *Flight {
	return &Flight{prober: prober}
}

// Trigger 返回 false 表示与进行中的探测重复而被丢弃
func (f *Flight) Trigger(parent context.Context, req Request, then Continuation) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running && f.current == req {
		log.WithField("side", req.Side).Debug("相同输入的探测进行中，丢弃")
		return false
	}
	if f.cancel != nil {
		f.cancel()
	}

	f.gen++
	gen := f.gen
	ctx, cancel := context.WithCancel(parent)
	f.cancel = cancel
	f.running = true
	f.current = req

	live := func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.gen == gen && ctx.Err() == nil
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.finish(gen, cancel)
		defer func() {
			if r := recover(); r != nil {
				log.WithField("side", req.Side).Errorf("探测流程 panic: %v", r)
			}
		}()

		res := f.prober.Probe(ctx, req)
		if !live() {
			return
		}
		if then != nil {
			then(ctx, res, live)
		}
	}()
	return true
}

// Reset 取消进行中的探测（资产被清空时使用）
func (f *Flight) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.running = false
	f.current = Request{}
}

// Running 是否有探测在进行
func (f *Flight) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Wait 等待所有已启动的运行结束（包括被取代的）
func (f *Flight) Wait() {
	f.wg.Wait()
}

func (f *Flight) finish(gen uint64, cancel context.CancelFunc) {
	cancel()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen == gen {
		f.running = false
		f.cancel = nil
	}
}
