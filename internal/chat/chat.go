// Package chat connects the command router to a chat room.
package chat

import (
	"context"
	"regexp"
	"strings"
	"sync"
)

// Handler receives one inbound message. Handlers run concurrently so a
// command waiting for a later message does not block delivery.
type Handler func(ctx context.Context, sender, body string)

// Replier posts messages to the room a command came from.
type Replier interface {
	SendText(ctx context.Context, text string) error
	SendHTML(ctx context.Context, html string) error
}

// Transport is a connected chat room.
type Transport interface {
	Replier
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F-\x{9F}\x{200B}\x{AD}]`)

// Sanitize removes control and invisible formatting characters.
func Sanitize(s string) string {
	return controlChars.ReplaceAllString(s, "")
}

var tags = regexp.MustCompile(`<[^>]*>`)

// PlainText renders an HTML fragment as plain text for clients without
// HTML support.
func PlainText(html string) string {
	text := tags.ReplaceAllString(html, "")
	text = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&amp;", "&").Replace(text)
	return strings.TrimSpace(text)
}

// Message is a reply captured by a Buffer.
type Message struct {
	Format string `json:"format"` // "text" or "html"
	Body   string `json:"body"`
}

// Buffer is a Replier that collects replies in memory.
type Buffer struct {
	mu       sync.Mutex
	messages []Message
}

func (b *Buffer) SendText(_ context.Context, text string) error {
	b.append(Message{Format: "text", Body: text})
	return nil
}

func (b *Buffer) SendHTML(_ context.Context, html string) error {
	b.append(Message{Format: "html", Body: html})
	return nil
}

func (b *Buffer) append(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, m)
}

// Messages returns a copy of the collected replies.
func (b *Buffer) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.messages...)
}
