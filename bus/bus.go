// Package bus implements C2: the inter-agent messaging substrate — direct
// per-agent mailboxes and topic pub/sub, both bounded, both exerting
// backpressure on producers rather than dropping messages (spec §4.3).
//
// The locking discipline required by spec §5 holds here: no bus-owned lock
// is ever held across a channel send/receive. Mailbox channels themselves
// provide the blocking; the bus's own mutex only ever guards map lookups
// and is released before any send or receive begins.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/synapseerr"
)

// AgentID identifies the sender or recipient of a Message. The sentinel
// value SystemSender marks messages originated by the runtime itself
// rather than by another agent.
type AgentID string

const SystemSender AgentID = "system"

// Topic is a broadcast namespace; Message.Recipient is either an AgentID or
// a Topic, never both.
type Topic string

// Message is the wire unit exchanged over the bus (spec §3).
type Message struct {
	Sender        AgentID
	Recipient     AgentID
	Topic         Topic
	Payload       content.AgentInput
	CorrelationID string
	Timestamp     time.Time
}

// NewMessage builds a directly-addressed Message with a fresh correlation
// id and the current timestamp.
func NewMessage(sender, recipient AgentID, payload content.AgentInput) Message {
	return Message{
		Sender:        sender,
		Recipient:     recipient,
		Payload:       payload,
		CorrelationID: uuid.NewString(),
		Timestamp:     time.Now(),
	}
}

// NewTopicMessage builds a Message destined for a Topic's subscribers.
func NewTopicMessage(sender AgentID, topic Topic, payload content.AgentInput) Message {
	return Message{
		Sender:        sender,
		Topic:         topic,
		Payload:       payload,
		CorrelationID: uuid.NewString(),
		Timestamp:     time.Now(),
	}
}

const component = "bus"

// mailbox is one agent's bounded inbound buffer plus the bookkeeping the
// bus needs to report depth and blocked-sender stats without reaching into
// the channel's internals.
type mailbox struct {
	ch chan Message

	mu      sync.Mutex
	blocked int
}

func newMailbox(capacity int) *mailbox {
	return &mailbox{ch: make(chan Message, capacity)}
}

// Bus is the owned, atomically-refcounted-by-pointer structure every
// runner and coordination pattern shares; it holds no process-wide
// singleton state.
type Bus struct {
	mu          sync.RWMutex
	mailboxes   map[AgentID]*mailbox
	subscribers map[Topic]map[AgentID]bool
	capacity    int
}

// Config configures Bus construction.
type Config struct {
	// MailboxCapacity bounds every agent's inbound buffer. Spec's typical
	// production value is 64.
	MailboxCapacity int
}

func (c *Config) setDefaults() {
	if c.MailboxCapacity <= 0 {
		c.MailboxCapacity = 64
	}
}

// New constructs an empty Bus.
func New(cfg Config) *Bus {
	cfg.setDefaults()
	return &Bus{
		mailboxes:   make(map[AgentID]*mailbox),
		subscribers: make(map[Topic]map[AgentID]bool),
		capacity:    cfg.MailboxCapacity,
	}
}

// Register installs a mailbox for agentID, returning the receive-only
// channel the agent's runner reads from. Registering an id that already
// has a mailbox is a no-op returning the existing channel, so repeated
// registration from C3 is idempotent.
func (b *Bus) Register(agentID AgentID) <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	mb, ok := b.mailboxes[agentID]
	if !ok {
		mb = newMailbox(b.capacity)
		b.mailboxes[agentID] = mb
	}
	return mb.ch
}

// Unregister removes agentID's mailbox and every topic subscription it
// held, closing the channel so the runner's receive loop observes closure.
func (b *Bus) Unregister(agentID AgentID) {
	b.mu.Lock()
	mb, ok := b.mailboxes[agentID]
	if ok {
		delete(b.mailboxes, agentID)
	}
	for _, subs := range b.subscribers {
		delete(subs, agentID)
	}
	b.mu.Unlock()

	if ok {
		close(mb.ch)
	}
}

func (b *Bus) lookupMailbox(agentID AgentID) (*mailbox, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	mb, ok := b.mailboxes[agentID]
	return mb, ok
}

// SendTo delivers msg into recipient's mailbox. It blocks the caller until
// space is available, the deadline in ctx expires (-> Backpressure), or ctx
// is cancelled (-> Cancelled). It never holds b.mu while blocked: the
// mailbox lookup releases the bus lock before the channel send begins.
func (b *Bus) SendTo(ctx context.Context, recipient AgentID, msg Message) error {
	mb, ok := b.lookupMailbox(recipient)
	if !ok {
		return synapseerr.New(component, synapseerr.KindNotFound, fmt.Sprintf("agent %q has no mailbox", recipient))
	}
	msg.Recipient = recipient
	return b.deliver(ctx, mb, msg)
}

func (b *Bus) deliver(ctx context.Context, mb *mailbox, msg Message) error {
	select {
	case mb.ch <- msg:
		return nil
	default:
	}

	mb.mu.Lock()
	mb.blocked++
	mb.mu.Unlock()
	defer func() {
		mb.mu.Lock()
		mb.blocked--
		mb.mu.Unlock()
	}()

	select {
	case mb.ch <- msg:
		return nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return synapseerr.New(component, synapseerr.KindBackpressure, "mailbox full, send deadline exceeded")
		}
		return synapseerr.New(component, synapseerr.KindCancelled, "send cancelled while blocked on full mailbox")
	}
}

// Subscribe adds agentID as a subscriber of topic.
func (b *Bus) Subscribe(agentID AgentID, topic Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscribers[topic]
	if !ok {
		subs = make(map[AgentID]bool)
		b.subscribers[topic] = subs
	}
	subs[agentID] = true
}

// Unsubscribe removes agentID from topic's subscriber set.
func (b *Bus) Unsubscribe(agentID AgentID, topic Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subscribers[topic]; ok {
		delete(subs, agentID)
	}
}

// Publish fans msg out to every subscriber of topic. Each recipient
// observes publish events in publish order (spec §4.3); ordering across
// distinct recipients is not guaranteed. A blocked subscriber's
// backpressure does not stall delivery to other subscribers: each
// recipient send runs in its own goroutine, and Publish waits for all of
// them before returning (whichever deadline ctx carries applies to each).
func (b *Bus) Publish(ctx context.Context, topic Topic, msg Message) error {
	b.mu.RLock()
	subs := make([]AgentID, 0, len(b.subscribers[topic]))
	for id := range b.subscribers[topic] {
		subs = append(subs, id)
	}
	b.mu.RUnlock()

	msg.Topic = topic

	var wg sync.WaitGroup
	errs := make([]error, len(subs))
	for i, id := range subs {
		mb, ok := b.lookupMailbox(id)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, mb *mailbox) {
			defer wg.Done()
			errs[i] = b.deliver(ctx, mb, msg)
		}(i, mb)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// MailboxStats is a point-in-time snapshot of one agent's mailbox, used by
// C11 to export queue-depth and blocked-sender gauges.
type MailboxStats struct {
	AgentID        AgentID
	Depth          int
	Capacity       int
	BlockedSenders int
}

// Stats returns a snapshot of every registered mailbox.
func (b *Bus) Stats() []MailboxStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]MailboxStats, 0, len(b.mailboxes))
	for id, mb := range b.mailboxes {
		mb.mu.Lock()
		blocked := mb.blocked
		mb.mu.Unlock()
		out = append(out, MailboxStats{
			AgentID:        id,
			Depth:          len(mb.ch),
			Capacity:       cap(mb.ch),
			BlockedSenders: blocked,
		})
	}
	return out
}
