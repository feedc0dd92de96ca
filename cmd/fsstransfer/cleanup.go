package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/exchangesets/fsstransfer/internal/debug"
)

// cleanup holds functions run once before the process terminates, newest
// first.
var cleanup struct {
	m        sync.Mutex
	handlers []func() error
}

// AddCleanupHandler registers f to run when Exit is called.
func AddCleanupHandler(f func() error) {
	cleanup.m.Lock()
	cleanup.handlers = append(cleanup.handlers, f)
	cleanup.m.Unlock()
}

func runCleanupHandlers() {
	cleanup.m.Lock()
	handlers := cleanup.handlers
	cleanup.handlers = nil
	cleanup.m.Unlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		if err := handlers[i](); err != nil {
			Warnf("cleanup failed: %v\n", err)
		}
	}
}

// createGlobalContext returns a context that is cancelled on SIGINT or
// SIGTERM. A second signal terminates the process immediately.
func createGlobalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		s := <-signals
		debug.Log("received %v, cancelling", s)
		Warnf("\n%v received, stopping\n", s)
		cancel()

		s = <-signals
		debug.Log("received %v again, exiting", s)
		Exit(130)
	}()

	return ctx
}

// Exit runs the cleanup handlers and terminates with code.
func Exit(code int) {
	runCleanupHandlers()
	debug.Log("exit status %d", code)
	os.Exit(code)
}
