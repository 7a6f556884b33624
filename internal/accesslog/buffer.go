package accesslog

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/authbox/internal/domain"
)

// Fields carries the identifiers known at the point an entry is recorded.
type Fields struct {
	OrganizationID string
	ClientID       string
	TokenID        string
	Error          string
	StatusCode     int
}

// Buffer accumulates the entries of one request. It belongs to the request
// goroutine and is not safe for concurrent use.
type Buffer struct {
	svc       *Service
	requestID string
	ip        string
	userAgent string
	start     time.Time
	entries   []domain.AccessLog
}

// NewBuffer starts a request-scoped buffer.
func (s *Service) NewBuffer(requestID, ip, userAgent string) *Buffer {
	return &Buffer{
		svc:       s,
		requestID: requestID,
		ip:        ip,
		userAgent: userAgent,
		start:     s.clock.Now(),
	}
}

func (b *Buffer) RequestID() string { return b.requestID }
func (b *Buffer) IP() string        { return b.ip }
func (b *Buffer) UserAgent() string { return b.userAgent }

// Add appends an entry stamped with the request metadata and elapsed time.
func (b *Buffer) Add(f Fields, format string, args ...any) {
	now := b.svc.clock.Now()
	message := format
	if len(args) > 0 {
		message = fmt.Sprintf(format, args...)
	}
	b.entries = append(b.entries, domain.AccessLog{
		ID:             b.svc.node.Generate().String(),
		CreateTime:     now,
		OrganizationID: f.OrganizationID,
		TokenID:        f.TokenID,
		ClientID:       f.ClientID,
		RequestID:      b.requestID,
		Source:         b.svc.source,
		Duration:       now.Sub(b.start),
		Message:        message,
		Error:          f.Error,
		StatusCode:     f.StatusCode,
		IP:             b.ip,
		UserAgent:      b.userAgent,
	})
}

// Len returns the number of entries not yet flushed.
func (b *Buffer) Len() int { return len(b.entries) }

// Flush hands every pending entry to the shared queue.
func (b *Buffer) Flush() {
	for _, e := range b.entries {
		b.svc.enqueue(e)
	}
	b.entries = nil
}

type bufferKey struct{}

// WithBuffer attaches b to ctx.
func WithBuffer(ctx context.Context, b *Buffer) context.Context {
	return context.WithValue(ctx, bufferKey{}, b)
}

// FromContext returns the buffer attached to ctx, or nil.
func FromContext(ctx context.Context) *Buffer {
	b, _ := ctx.Value(bufferKey{}).(*Buffer)
	return b
}

// Record adds an entry to the buffer carried by ctx. Without a buffer it does nothing.
func Record(ctx context.Context, f Fields, format string, args ...any) {
	if b := FromContext(ctx); b != nil {
		b.Add(f, format, args...)
	}
}
