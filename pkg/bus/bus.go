// Package bus carries models.Event values from the ingestion paths (poll loop,
// tick stream) to the multicast layer. Every driver offers the same
// Publisher/Subscriber pair so consumers do not care where events come from.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/shubham-shewale/market-pulse/pkg/models"
)

var (
	ErrClosed     = errors.New("bus: closed")
	ErrBufferFull = errors.New("bus: buffer full")
)

type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
	Close() error
}

// Subscriber blocks in Run, invoking handler for each event until ctx ends.
type Subscriber interface {
	Run(ctx context.Context, handler func(models.Event)) error
}

// Compile-time checks
var (
	_ Publisher  = (*Local)(nil)
	_ Subscriber = (*Local)(nil)
)

// Local is an in-process bus with a single consumer.
type Local struct {
	ch     chan models.Event
	mu     sync.RWMutex
	closed bool
}

func NewLocal(buffer int) *Local {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Local{ch: make(chan models.Event, buffer)}
}

// Publish never blocks: a full buffer drops the event.
func (l *Local) Publish(ctx context.Context, ev models.Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return ErrClosed
	}

	select {
	case l.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

func (l *Local) Run(ctx context.Context, handler func(models.Event)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-l.ch:
			if !ok {
				return nil
			}
			handler(ev)
		}
	}
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		l.closed = true
		close(l.ch)
	}
	return nil
}
