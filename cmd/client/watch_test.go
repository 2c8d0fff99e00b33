package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openmined/assetsync/internal/assets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchLoop(t *testing.T) {
	changes := make(chan []string)
	calls := make(chan struct{}, 10)
	n := 0
	sync := func(ctx context.Context) (*assets.Result, error) {
		n++
		calls <- struct{}{}
		if n == 2 {
			return nil, errors.New("store unavailable")
		}
		return &assets.Result{}, nil
	}

	done := make(chan error, 1)
	go func() { done <- watchLoop(context.Background(), sync, changes) }()

	<-calls // startup
	changes <- []string{"/a.html"}
	<-calls
	changes <- []string{"/b.html"}
	<-calls
	close(changes)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not return")
	}
	assert.Equal(t, 3, n, "a failed run does not stop the loop")
}

func TestWatchLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	sync := func(context.Context) (*assets.Result, error) {
		close(started)
		return &assets.Result{}, nil
	}

	done := make(chan error, 1)
	go func() { done <- watchLoop(ctx, sync, make(chan []string)) }()

	<-started
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not return")
	}
}
