package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/sociallink/internal/changefeed"
	"github.com/and161185/sociallink/internal/model"
)

type chanSource chan model.ChangeEvent

func (c chanSource) Next(ctx context.Context) (model.ChangeEvent, error) {
	select {
	case <-ctx.Done():
		return model.ChangeEvent{}, ctx.Err()
	case ev := <-c:
		return ev, nil
	}
}

func TestWatchFeed_LogsCountsPerTable(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	src := make(chanSource, 8)
	hub := changefeed.NewHub(src, zap.NewNop(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hubDone := make(chan struct{})
	go func() { _ = hub.Run(ctx); close(hubDone) }()

	watchDone := make(chan struct{})
	go func() { watchFeed(ctx, hub, zap.New(core), 20*time.Millisecond); close(watchDone) }()

	ev, err := model.NewChangeEvent(model.TablePosts, model.OpInsert, []byte(`{"id":"p"}`))
	require.NoError(t, err)

	// keep emitting until the watcher has subscribed and reported
	require.Eventually(t, func() bool {
		select {
		case src <- ev:
		default:
		}
		for _, e := range logs.FilterMessage("change feed activity").All() {
			if e.ContextMap()[model.TablePosts].(int64) > 0 {
				return true
			}
		}
		return false
	}, 2*time.Second, 25*time.Millisecond)

	cancel()
	<-watchDone
	<-hubDone
}

type failingSource struct{ err chan error }

func (s failingSource) Next(ctx context.Context) (model.ChangeEvent, error) {
	select {
	case <-ctx.Done():
		return model.ChangeEvent{}, ctx.Err()
	case err := <-s.err:
		return model.ChangeEvent{}, err
	}
}

func TestWatchFeed_ReturnsWhenHubStops(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	src := failingSource{err: make(chan error, 1)}
	hub := changefeed.NewHub(src, zap.NewNop(), 0)

	watchDone := make(chan struct{})
	go func() { watchFeed(context.Background(), hub, zap.New(core), time.Hour); close(watchDone) }()

	src.err <- errors.New("connection reset")
	require.Error(t, hub.Run(context.Background()))

	select {
	case <-watchDone:
	case <-time.After(2 * time.Second):
		t.Fatal("watchFeed kept running after the hub stopped")
	}
	require.Equal(t, 1, logs.FilterMessage("change feed stopped").Len())
}
