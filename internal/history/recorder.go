package history

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "history")

// Recorder 交易记录，调用方不等待写入结果
type Recorder interface {
	Record(hash, account string, chainID uint64, summary string)
	MarkConfirmed(hash string, ok bool)
}

// Nop 丢弃所有记录
type Nop struct{}

func (Nop) Record(string, string, uint64, string) {}
func (Nop) MarkConfirmed(string, bool)            {}

type op struct {
	entry  *Entry
	hash   string
	status Status
}

// AsyncRecorder 通过后台协程写入 Store；队列满时丢弃并告警
type AsyncRecorder struct {
	store *Store
	ops   chan op
	done  chan struct{}
	once  sync.Once
}

func NewAsyncRecorder(store *Store, queue int) *AsyncRecorder {
	if queue <= 0 {
		queue = 64
	}
	r := &AsyncRecorder{
		store: store,
		ops:   make(chan op, queue),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *AsyncRecorder) Record(hash, account string, chainID uint64, summary string) {
	r.enqueue(op{entry: &Entry{Hash: hash, Account: account, ChainID: chainID, Summary: summary}})
}

func (r *AsyncRecorder) MarkConfirmed(hash string, ok bool) {
	status := StatusConfirmed
	if !ok {
		status = StatusFailed
	}
	r.enqueue(op{hash: hash, status: status})
}

func (r *AsyncRecorder) enqueue(o op) {
	defer func() {
		// Close 之后的写入直接丢弃
		_ = recover()
	}()
	select {
	case r.ops <- o:
	default:
		log.Warn("交易记录队列已满，丢弃一条记录")
	}
}

func (r *AsyncRecorder) loop() {
	defer close(r.done)
	for o := range r.ops {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var err error
		if o.entry != nil {
			_, err = r.store.Insert(ctx, *o.entry)
		} else {
			err = r.store.SetStatus(ctx, o.hash, o.status)
		}
		cancel()
		if err != nil {
			log.WithError(err).Warn("写入交易记录失败")
		}
	}
}

// Close 停止接收并等待队列写完
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.once.Do(func() { close(r.ops) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
