// Package workers runs connection tasks on a bounded goroutine pool.
package workers

import (
	"sync"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"

	"github.com/mgray/tempest/pkg/logs"
)

const workersCaller = "Workers"

// Pool runs short connection tasks: dials and accept hand-offs. Submit never
// blocks; a saturated pool rejects the task with ants.ErrPoolOverload.
type Pool struct {
	pool   *ants.Pool
	logger *log.Logger
}

// NewPool creates a pool with room for size concurrent tasks. A size of zero
// or less leaves the pool effectively unbounded.
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		size = ants.DefaultAntsPoolSize
	}
	logger := logs.NewLogger(workersCaller)
	p, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(x interface{}) {
			logger.Errorf("task panicked: %v", x)
		}))
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p, logger: logger}, nil
}

func (p *Pool) Submit(task func()) error {
	err := p.pool.Submit(task)
	if err == ants.ErrPoolOverload {
		p.logger.Warnf("pool of %d workers is saturated", p.pool.Cap())
	}
	return err
}

// Running is the number of live workers, busy or idle.
func (p *Pool) Running() int {
	return p.pool.Running()
}

func (p *Pool) Cap() int {
	return p.pool.Cap()
}

// Release stops the pool; tasks already running finish on their own.
func (p *Pool) Release() {
	p.pool.Release()
}

var (
	defaultOnce sync.Once
	defaultPool *Pool
)

// Default returns the process-wide pool, created on first use.
func Default() *Pool {
	defaultOnce.Do(func() {
		p, err := NewPool(0)
		if err != nil {
			panic(err)
		}
		defaultPool = p
	})
	return defaultPool
}
