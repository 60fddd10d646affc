package audit

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// batcher writes rows of one model asynchronously in batches.
type batcher[T any] struct {
	name     string
	db       *gorm.DB
	ch       chan *T
	size     int
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	dropped  atomic.Uint64
	written  atomic.Uint64
	logger   *zap.Logger
}

func newBatcher[T any](name string, db *gorm.DB, cfg Config, logger *zap.Logger) *batcher[T] {
	b := &batcher[T]{
		name:     name,
		db:       db,
		ch:       make(chan *T, cfg.QueueSize),
		size:     cfg.BatchSize,
		interval: cfg.FlushInterval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
	b.wg.Add(1)
	go b.worker()
	return b
}

// enqueue never blocks; a full queue drops the row.
func (b *batcher[T]) enqueue(row *T) bool {
	select {
	case <-b.stopCh:
		b.dropped.Add(1)
		return false
	default:
	}
	select {
	case b.ch <- row:
		return true
	default:
		b.dropped.Add(1)
		b.logger.Warn("audit channel full, dropping entry", zap.String("stream", b.name))
		return false
	}
}

// stop flushes remaining rows and blocks until the worker has finished.
func (b *batcher[T]) stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}

func (b *batcher[T]) worker() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	batch := make([]*T, 0, b.size)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := b.db.Create(&batch).Error; err != nil {
			b.logger.Error("audit batch write failed", zap.String("stream", b.name), zap.Error(err))
		} else {
			b.written.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case row := <-b.ch:
			batch = append(batch, row)
			if len(batch) >= b.size {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-b.stopCh:
			// Drain remaining rows.
			for {
				select {
				case row := <-b.ch:
					batch = append(batch, row)
					if len(batch) >= b.size {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
