package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"flatex_bot/internal/chat"
)

func TestPinPrompt_ResolveDeliversCode(t *testing.T) {
	var room chat.Buffer
	p := NewPinPrompt(&room, nil)

	got := make(chan string, 1)
	go func() {
		code, _ := p.Collect(context.Background())
		got <- code
	}()

	deadline := time.Now().Add(time.Second)
	for !p.Pending() {
		if time.Now().After(deadline) {
			t.Fatal("Collect never became pending")
		}
		time.Sleep(time.Millisecond)
	}
	if !p.Resolve("123456") {
		t.Fatal("Resolve() = false with a pending request")
	}
	if code := <-got; code != "123456" {
		t.Errorf("Collect() = %q, want 123456", code)
	}

	msgs := room.Messages()
	if len(msgs) != 1 || msgs[0].Body != pinPromptHTML {
		t.Errorf("prompt messages = %+v", msgs)
	}
}

func TestPinPrompt_ResolveWithoutPendingIsNoop(t *testing.T) {
	p := NewPinPrompt(nil, nil)
	if p.Resolve("123456") {
		t.Error("Resolve() = true with nothing pending")
	}
}

func TestPinPrompt_ResolvesOnlyOnce(t *testing.T) {
	p := NewPinPrompt(nil, nil)
	done := make(chan struct{})
	go func() {
		p.Collect(context.Background())
		close(done)
	}()
	for !p.Pending() {
		time.Sleep(time.Millisecond)
	}
	p.Resolve("1")
	<-done
	if p.Resolve("2") {
		t.Error("second Resolve() should find nothing pending")
	}
}

func TestPinPrompt_CollectHonoursContext(t *testing.T) {
	p := NewPinPrompt(nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.Collect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Collect() error = %v, want deadline exceeded", err)
	}
	if p.Pending() {
		t.Error("cancelled Collect must clear the pending request")
	}
}
