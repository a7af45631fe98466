package services

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
	ran   chan struct{}
}

func (s *countingSweeper) ExpireOverdueSessions(ctx context.Context) error {
	if s.calls.Add(1) == 1 {
		close(s.ran)
	}
	return nil
}

func TestRunSessionSweeperStopsOnCancel(t *testing.T) {
	sweeper := &countingSweeper{ran: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	done := make(chan struct{})
	go func() {
		RunSessionSweeper(ctx, sweeper, time.Millisecond, logger)
		close(done)
	}()

	select {
	case <-sweeper.ran:
	case <-time.After(time.Second):
		t.Fatal("sweeper never ran")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}

	require.GreaterOrEqual(t, sweeper.calls.Load(), int32(1))
	settled := sweeper.calls.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, settled, sweeper.calls.Load(), "a stopped sweeper must not keep running")
}
