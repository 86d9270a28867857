package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeServer struct {
	startErr error
	closed   chan struct{}
	shutdown int
}

func newFakeServer(startErr error) *fakeServer {
	return &fakeServer{startErr: startErr, closed: make(chan struct{})}
}

func (f *fakeServer) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	<-f.closed
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(ctx context.Context) error {
	f.shutdown++
	close(f.closed)
	return nil
}

func TestServeUntilSignal(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	listenErr := errors.New("listen tcp :8080: bind: address already in use")

	tests := []struct {
		name         string
		startErr     error
		signal       bool
		wantErr      error
		wantShutdown int
	}{
		{name: "listen failure returns", startErr: listenErr, wantErr: listenErr},
		{name: "signal shuts down", signal: true, wantShutdown: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newFakeServer(tt.startErr)
			sig := make(chan os.Signal, 1)
			if tt.signal {
				sig <- syscall.SIGTERM
			}

			done := make(chan error, 1)
			go func() { done <- serveUntilSignal(server, sig, logger) }()

			select {
			case err := <-done:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("serveUntilSignal() error = %v, want %v", err, tt.wantErr)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("serveUntilSignal did not return")
			}
			if server.shutdown != tt.wantShutdown {
				t.Errorf("Shutdown called %d times, want %d", server.shutdown, tt.wantShutdown)
			}
		})
	}
}
