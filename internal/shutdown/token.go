// Package shutdown provides the cancellation token used to stop a copy run
// between transfers.
//
// Cancelling a token never interrupts work that already started: the
// scheduler checks the token before each wave and before each task, and
// in-flight transfers run to completion on their own context. An interrupted
// run therefore leaves every object either copied and recorded, or pending.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// Token is a one-shot cancellation flag safe for concurrent use.
type Token struct {
	mu        sync.Mutex
	done      chan struct{}
	reason    string
	requested time.Time
}

// NewToken creates an uncancelled token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel requests cancellation. Calling it more than once is a no-op.
func (t *Token) Cancel() {
	t.CancelWithReason("cancelled")
}

// CancelWithReason requests cancellation and records why. Only the first
// reason is kept.
func (t *Token) CancelWithReason(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.done:
		return
	default:
	}

	t.reason = reason
	t.requested = time.Now()
	close(t.done)

	RecordCancellation(reason)
}

// Cancelled reports whether cancellation was requested.
func (t *Token) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed on cancellation.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Reason returns the reason passed to the first cancellation, or "".
func (t *Token) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.reason
}

// RequestedAt returns when cancellation was requested, or the zero time.
func (t *Token) RequestedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.requested
}

// NotifyOnSignal cancels t on the first SIGINT or SIGTERM. After that the
// handler is removed, so a second signal terminates the process the default
// way. The returned stop function detaches the handler early.
func NotifyOnSignal(t *Token) (stop func()) {
	return notify(t, syscall.SIGINT, syscall.SIGTERM)
}

func notify(t *Token, sigs ...os.Signal) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sigs...)

	quit := make(chan struct{})

	var once sync.Once

	stop := func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(quit)
		})
	}

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().
				Str("signal", sig.String()).
				Msg("Received shutdown signal, finishing in-flight transfers")
			t.CancelWithReason(sig.String())
			stop()
		case <-quit:
		}
	}()

	return stop
}
