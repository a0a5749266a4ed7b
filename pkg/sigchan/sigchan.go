package sigchan

import "sync"

// Broadcaster 变更通知：只告诉订阅者"有变化"，不传递数据。
// 每个订阅者持有容量为 1 的 channel，连续多次通知会合并为一次。
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan struct{}
	next   int
	closed bool
}

func New() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan struct{})}
}

// Subscribe 返回通知 channel 和取消函数；取消或 Close 后 channel 会被关闭。
// Close 之后订阅得到的是已关闭的 channel。
func (b *Broadcaster) Subscribe() (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := make(chan struct{}, 1)
	if b.closed {
		close(c)
		return c, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = c

	return c, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Emit 非阻塞通知所有订阅者
func (b *Broadcaster) Emit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.subs {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

// Close 关闭所有订阅者的 channel，可重复调用
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, c := range b.subs {
		delete(b.subs, id)
		close(c)
	}
}
