package commands

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"flatex_bot/internal/chat"
)

const pinPromptHTML = "<p>Enter pin via <code>tan 12 34 56</code></p>"

// PinPrompt collects second-factor codes from the chat. Collect is used as
// the session's code source; the tan command calls Resolve.
type PinPrompt struct {
	room   chat.Replier
	logger *zap.Logger

	mu      sync.Mutex
	pending chan string
}

// NewPinPrompt creates a prompt posting to room. A nil room skips the
// prompt message; codes can still arrive through the webhook.
func NewPinPrompt(room chat.Replier, logger *zap.Logger) *PinPrompt {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PinPrompt{room: room, logger: logger.Named("pin")}
}

// Collect asks for a code and waits for Resolve or ctx.
func (p *PinPrompt) Collect(ctx context.Context) (string, error) {
	ch := make(chan string, 1)
	p.mu.Lock()
	p.pending = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.pending == ch {
			p.pending = nil
		}
		p.mu.Unlock()
	}()

	if p.room != nil {
		if err := p.room.SendHTML(ctx, pinPromptHTML); err != nil {
			p.logger.Warn("posting pin prompt failed", zap.Error(err))
		}
	}

	select {
	case code := <-ch:
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Resolve hands code to the waiting Collect. It reports false, and does
// nothing, when no code is awaited.
func (p *PinPrompt) Resolve(code string) bool {
	p.mu.Lock()
	ch := p.pending
	p.pending = nil
	p.mu.Unlock()

	if ch == nil {
		return false
	}
	ch <- code
	return true
}

// Pending reports whether a code is awaited.
func (p *PinPrompt) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}
