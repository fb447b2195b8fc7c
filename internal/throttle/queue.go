package throttle

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
)

var ErrClosed = errors.New("request queue is closed")

// Queue serializes the physical requests of one source. Jobs run one at a time,
// in arrival order, and consecutive jobs start at least minDelay apart.
type Queue struct {
	name    string
	limiter ratelimit.Limiter
	jobs    chan job

	done      chan struct{}
	closeOnce sync.Once
}

type job struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	result chan error
}

func NewQueue(name string, minDelay time.Duration) *Queue {
	limiter := ratelimit.NewUnlimited()
	if minDelay > 0 {
		limiter = ratelimit.New(1, ratelimit.Per(minDelay), ratelimit.WithoutSlack)
	}

	q := &Queue{
		name:    name,
		limiter: limiter,
		jobs:    make(chan job),
		done:    make(chan struct{}),
	}
	go q.loop()

	return q
}

func (q *Queue) Name() string {
	return q.name
}

// Do waits for the source's turn and runs fn. A caller whose context ends
// while still waiting gives up its slot; once fn has started it runs to completion.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	j := job{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}

	return <-j.result
}

func (q *Queue) loop() {
	for {
		select {
		case <-q.done:
			return
		case j := <-q.jobs:
			if err := j.ctx.Err(); err != nil {
				j.result <- err
				continue
			}

			q.limiter.Take()
			log.Debugf("Dispatching request for source %s", q.name)
			j.result <- j.fn(j.ctx)
		}
	}
}

// Close stops the dispatcher. Callers blocked in Do receive ErrClosed.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
