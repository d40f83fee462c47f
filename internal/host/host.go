// Package host declares the contracts the embedding host chat application
// fulfills. The engine never owns message history or display surfaces; it
// reads messages through these interfaces and writes retrieved content back
// through the lorebook sink.
package host

import "context"

// Message is one message of a conversation. Floor is its index within the
// conversation's history.
type Message struct {
	Floor    int
	FromUser bool
	Author   string
	Text     string
}

// MessageProvider exposes the live message array of a conversation.
type MessageProvider interface {
	// Messages returns the conversation's messages ordered by floor.
	Messages(ctx context.Context, chatID string) ([]Message, error)
	// CharacterID returns the stable identifier of the conversation's
	// character, used as the local ownership scope.
	CharacterID(ctx context.Context, chatID string) (string, error)
}

// LorebookEntry is one named entry written back to the host's world-info
// store.
type LorebookEntry struct {
	Book    string
	Name    string
	Content string
	Keys    []string
	Enabled bool
}

// LorebookSink accepts upserts of named entries; the host renders them.
type LorebookSink interface {
	UpsertEntry(ctx context.Context, entry LorebookEntry) error
}
