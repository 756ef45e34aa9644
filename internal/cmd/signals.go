package cmd

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Iron-Ham/afkcode/internal/console"
	"github.com/Iron-Ham/afkcode/internal/coordinator"
)

// forceExitWindow is how soon a second interrupt must follow the first to
// exit without waiting for workers.
const forceExitWindow = 5 * time.Second

// exitInterrupted is the conventional status for termination by SIGINT.
const exitInterrupted = 130

// interruptHandler turns the first interrupt into a graceful shutdown and
// a quick second one into an immediate exit.
type interruptHandler struct {
	shutdown *coordinator.Shutdown
	con      *console.Console
	now      func() time.Time
	exit     func(int)

	mu   sync.Mutex
	last time.Time
}

func (h *interruptHandler) handle() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if !h.last.IsZero() && now.Sub(h.last) < forceExitWindow {
		h.con.Warn("\nInterrupted again. Force exiting.")
		h.exit(exitInterrupted)
		return
	}
	h.last = now
	h.shutdown.Set()
	h.con.Warn("\nInterrupted. Finishing current turn... (Press Ctrl+C again within 5s to force exit)")
}

// notifyInterrupts routes SIGINT and SIGTERM to an interruptHandler until
// the returned function is called.
func notifyInterrupts(shutdown *coordinator.Shutdown, con *console.Console) (stop func()) {
	h := &interruptHandler{shutdown: shutdown, con: con, now: time.Now, exit: os.Exit}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigCh:
				h.handle()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
		})
	}
}
