// Package session implements C9: an append-only, totally-ordered log of
// chat messages per conversation, with an optional serialized persistence
// hook (spec §4.9, §6).
package session

import (
	"context"
	"sync"

	"github.com/synapse-run/synapse/chat"
	"github.com/synapse-run/synapse/compression"
	"github.com/synapse-run/synapse/synapseerr"
)

const component = "session"

// Store is the persistence hook from spec §6. Implementations (embedded
// database, server database) are external to this module; the core
// depends only on this interface.
type Store interface {
	AppendMessage(ctx context.Context, sessionID string, msg chat.Message) error
	LoadMessages(ctx context.Context, sessionID string, limit int) ([]chat.Message, error)
	CreateSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]string, error)
}

// Session is an append-only ChatMessage log. Appends are atomic; when a
// Store is configured, the in-memory append and the store write are
// serialized under the same lock (spec §4.9's "serialized per session").
type Session struct {
	id    string
	store Store

	mu       sync.Mutex
	messages []chat.Message
}

// New constructs an empty Session with no persistence hook.
func New(id string) *Session {
	return &Session{id: id}
}

// NewWithStore constructs a Session backed by store; messages already
// persisted for id are not automatically loaded — call Load explicitly.
func NewWithStore(id string, store Store) *Session {
	return &Session{id: id, store: store}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// Load replaces the in-memory log with up to limit messages from the
// configured Store (0 means no limit). Intended for resuming a session
// at startup.
func (s *Session) Load(ctx context.Context, limit int) error {
	if s.store == nil {
		return synapseerr.New(component, synapseerr.KindInvalidState, "session has no store configured")
	}
	msgs, err := s.store.LoadMessages(ctx, s.id, limit)
	if err != nil {
		return synapseerr.Wrap(component, synapseerr.KindInternal, err, "loading persisted messages")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = msgs
	return nil
}

// Append adds msg to the end of the log. If a Store is configured, the
// store write happens while the in-memory lock is held, so concurrent
// Appends on the same Session are strictly serialized end to end.
func (s *Session) Append(ctx context.Context, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		if err := s.store.AppendMessage(ctx, s.id, msg); err != nil {
			return synapseerr.Wrap(component, synapseerr.KindInternal, err, "persisting message")
		}
	}
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns a snapshot of the full log, in order.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// View returns a possibly-compressed snapshot suitable for a reasoning
// call; it never mutates the log. A nil compressor returns the full log
// unchanged.
func (s *Session) View(ctx context.Context, maxTokens int, compressor *compression.Compressor, strategy compression.Strategy) ([]chat.Message, error) {
	messages := s.Messages()
	if compressor == nil {
		return messages, nil
	}
	result, err := compressor.Compress(ctx, messages, maxTokens, strategy)
	if err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// Clear empties the in-memory log. It does not touch the Store; callers
// needing to purge persisted history must do so through Store directly.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// Fork creates a new Session under newSessionID with a copy of the
// current log, sharing this Session's Store (if any). The fork is
// independent afterward: appends to one do not affect the other.
func (s *Session) Fork(newSessionID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]chat.Message, len(s.messages))
	copy(cp, s.messages)
	return &Session{id: newSessionID, store: s.store, messages: cp}
}
