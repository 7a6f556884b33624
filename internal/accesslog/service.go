// Package accesslog collects audit entries per request and writes them to the
// store from a single background worker.
package accesslog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/clock"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/repository"
)

const writeTimeout = 5 * time.Second

// Config controls the shared queue.
type Config struct {
	Source    domain.AccessLogSource
	QueueSize int
}

// Service owns the process-wide queue and its drain worker.
type Service struct {
	repo   repository.AccessLogRepository
	clock  clock.Clock
	node   *snowflake.Node
	logger *zap.Logger
	source domain.AccessLogSource

	queue   chan domain.AccessLog
	stop    chan struct{}
	done    chan struct{}
	started atomic.Bool
	once    sync.Once
	dropped atomic.Uint64
}

func NewService(repo repository.AccessLogRepository, clk clock.Clock, node *snowflake.Node, cfg Config, logger *zap.Logger) *Service {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1024
	}
	source := cfg.Source
	if source == "" {
		source = domain.SourceOauth2Server
	}
	return &Service{
		repo:   repo,
		clock:  clk,
		node:   node,
		logger: logger,
		source: source,
		queue:  make(chan domain.AccessLog, size),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the drain worker. Calling it more than once has no effect.
func (s *Service) Start(context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	go s.run()
	s.enqueue(s.systemEntry("Access log service started"))
	s.logger.Info("access log service started", zap.Int("queue_capacity", cap(s.queue)))
	return nil
}

// Stop writes a shutdown entry, drains whatever is queued and waits for the
// worker to exit or ctx to end.
func (s *Service) Stop(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}
	s.once.Do(func() {
		s.enqueue(s.systemEntry("Access log service stopping"))
		close(s.stop)
	})
	select {
	case <-s.done:
		s.logger.Info("access log service stopped", zap.Uint64("dropped", s.dropped.Load()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueLen reports the number of entries waiting for the worker.
func (s *Service) QueueLen() int { return len(s.queue) }

// Dropped reports how many entries were discarded because the queue was full.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

func (s *Service) run() {
	defer close(s.done)
	for {
		select {
		case entry := <-s.queue:
			s.write(entry)
		case <-s.stop:
			for {
				select {
				case entry := <-s.queue:
					s.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) write(entry domain.AccessLog) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.repo.Insert(ctx, entry); err != nil {
		s.logger.Warn("access log insert failed",
			zap.String("request_id", entry.RequestID),
			zap.String("message", entry.Message),
			zap.Error(err),
		)
	}
}

func (s *Service) enqueue(entry domain.AccessLog) {
	select {
	case s.queue <- entry:
	default:
		s.dropped.Add(1)
		s.logger.Warn("access log queue full, entry dropped",
			zap.String("request_id", entry.RequestID),
			zap.String("message", entry.Message),
		)
	}
}

func (s *Service) systemEntry(message string) domain.AccessLog {
	return domain.AccessLog{
		ID:         s.node.Generate().String(),
		CreateTime: s.clock.Now(),
		Source:     s.source,
		Message:    message,
	}
}
