package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// InterruptHandler tells the user what a canceled run left behind. It does not
// register for signals itself; main turns SIGINT and SIGTERM into
// cancellation of the command context.
type InterruptHandler struct {
	writer      io.Writer
	parent      context.Context
	cancelFunc  context.CancelFunc
	interrupted bool
	publishing  bool
	stopped     bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a new interrupt handler.
func NewInterruptHandler(writer io.Writer) *InterruptHandler {
	if writer == nil {
		writer = os.Stderr
	}
	return &InterruptHandler{
		writer: writer,
	}
}

// HandleInterrupts returns a context derived from parent. Cancellation of
// parent before Stop counts as an interrupt.
func (h *InterruptHandler) HandleInterrupts(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	h.mu.Lock()
	h.parent = parent
	h.cancelFunc = cancel
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		if parent.Err() != nil && !h.interrupted && !h.stopped {
			h.interrupted = true
			h.showInterruptMessage()
		}
	}()

	return ctx
}

// Publishing records that report writers have started, so an interrupt may
// leave partial output behind.
func (h *InterruptHandler) Publishing() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publishing = true
}

// Stop releases the handler once the run has finished normally.
func (h *InterruptHandler) Stop() {
	h.mu.Lock()
	h.stopped = true
	cancel := h.cancelFunc
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *InterruptHandler) showInterruptMessage() {
	msg := "\n\n" + FormatWarning("Run interrupted!")

	if h.publishing {
		msg += "\n" + FormatInfo("Reports written so far may be incomplete. Re-run with: invoice run")
	} else {
		msg += "\n" + FormatInfo("Nothing was written.")
	}
	msg += "\n"

	if _, err := fmt.Fprint(h.writer, msg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write interrupt message: %v\n", err)
	}
}

// WasInterrupted reports whether the parent context was canceled before Stop.
// It does not wait for the interrupt message to be shown.
func (h *InterruptHandler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.interrupted {
		return true
	}
	return !h.stopped && h.parent != nil && h.parent.Err() != nil
}
