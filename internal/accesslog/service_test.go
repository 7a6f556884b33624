package accesslog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/accesslog"
	"github.com/smallbiznis/authbox/internal/clock"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/repository"
)

func newService(t *testing.T, repo repository.AccessLogRepository, size int) (*accesslog.Service, *clock.Manual) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewManual(time.Unix(1700000000, 0).UTC())
	return accesslog.NewService(repo, clk, node, accesslog.Config{QueueSize: size}, zap.NewNop()), clk
}

func TestBufferFlushThroughWorker(t *testing.T) {
	repo := repository.NewMemoryAccessLogRepo()
	svc, clk := newService(t, repo, 16)
	require.NoError(t, svc.Start(context.Background()))

	buf := svc.NewBuffer("req-1", "10.0.0.1", "curl/8")
	ctx := accesslog.WithBuffer(context.Background(), buf)
	accesslog.Record(ctx, accesslog.Fields{OrganizationID: "o1"}, "Request started")
	clk.Advance(25 * time.Millisecond)
	accesslog.Record(ctx, accesslog.Fields{OrganizationID: "o1", ClientID: "c1", StatusCode: 400, Error: "invalid request"}, "Client id=%s not found", "c1")
	require.Equal(t, 2, buf.Len())

	buf.Flush()
	require.Zero(t, buf.Len())

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(stopCtx))

	entries, err := repo.ListByRequestID(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "Client id=c1 not found", entries[1].Message)
	require.Equal(t, 25*time.Millisecond, entries[1].Duration)
	require.Equal(t, domain.SourceOauth2Server, entries[1].Source)
	require.Equal(t, "10.0.0.1", entries[1].IP)

	// startup and shutdown entries
	require.Equal(t, 4, repo.Len())
}

func TestRecordWithoutBufferIsNoop(t *testing.T) {
	accesslog.Record(context.Background(), accesslog.Fields{}, "ignored")
	require.Nil(t, accesslog.FromContext(context.Background()))
}

func TestFullQueueDropsEntries(t *testing.T) {
	repo := repository.NewMemoryAccessLogRepo()
	svc, _ := newService(t, repo, 1)

	buf := svc.NewBuffer("req-2", "", "")
	for i := 0; i < 3; i++ {
		buf.Add(accesslog.Fields{}, "entry %d", i)
	}
	buf.Flush()
	require.Equal(t, 1, svc.QueueLen())
	require.Equal(t, uint64(2), svc.Dropped())
}

type failingRepo struct {
	repository.AccessLogRepository
	calls int
}

func (f *failingRepo) Insert(context.Context, domain.AccessLog) error {
	f.calls++
	return errors.New("db down")
}

func TestInsertErrorsDoNotStopWorker(t *testing.T) {
	repo := &failingRepo{}
	svc, _ := newService(t, repo, 8)
	require.NoError(t, svc.Start(context.Background()))

	buf := svc.NewBuffer("req-3", "", "")
	buf.Add(accesslog.Fields{}, "one")
	buf.Add(accesslog.Fields{}, "two")
	buf.Flush()

	require.NoError(t, svc.Stop(context.Background()))
	require.Equal(t, 4, repo.calls)
}

func TestStopWithoutStart(t *testing.T) {
	svc, _ := newService(t, repository.NewMemoryAccessLogRepo(), 1)
	require.NoError(t, svc.Stop(context.Background()))
}
