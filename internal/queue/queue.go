// Package queue implements the per-relay durable operation queue (spec.md §4.6 C6): the tagged Op variants a relay's
// fan-out worker consumes in order, riding on top of internal/valkey's generic durable Queue.
package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/zetxtech/anonycnbot/internal/valkey"
)

// Kind tags the seven operation variants of spec.md §4.6.
type Kind int

const (
	KindBroadcast Kind = iota
	KindEdit
	KindDelete
	KindPin
	KindUnpin
	KindBulkRedirect
	KindBulkPin
)

// String renders the kind name, mainly for logging.
func (k Kind) String() string {
	switch k {
	case KindBroadcast:
		return "broadcast"
	case KindEdit:
		return "edit"
	case KindDelete:
		return "delete"
	case KindPin:
		return "pin"
	case KindUnpin:
		return "unpin"
	case KindBulkRedirect:
		return "bulk_redirect"
	case KindBulkPin:
		return "bulk_pin"
	default:
		return "unknown"
	}
}

// Entity is a single formatting span within outbound text, offset-adjusted per spec.md §4.7 step 2.
type Entity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// Content is the outbound payload composed for Broadcast/Edit ops before prefixing with the sender's mask.
type Content struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities,omitempty"`
	MediaID  *string  `json:"media_id,omitempty"`
	Voice    bool     `json:"voice,omitempty"`
}

// Result is the final (requests, errors) tally an op reports through its Done channel (spec.md §4.6, §4.7).
type Result struct {
	Requests int
	Errors   int
}

// Op is one element of a relay's durable operation queue. Done fires exactly once, when the fan-out worker
// transitions the op from executing to signaled_success/signaled_with_errors (spec.md §4.7 "state machine for an
// op"). Done is never persisted directly; see View and FromView for the save_hook/load_hook pair spec.md §9
// requires.
type Op struct {
	ID        uuid.UUID
	Kind      Kind
	CreatedAt time.Time

	Sender  uuid.UUID // Member ID: the op's originating sender, for Broadcast/Edit
	Message uuid.UUID // Message ID: the new message for Broadcast/Edit, the target for Delete/Pin/Unpin

	Content *Content // set for Broadcast/Edit: the composed body before mask-prefixing

	Recipient uuid.UUID   // Member ID: the single recipient of a BulkRedirect/BulkPin replay
	Replay    []uuid.UUID // ordered Message IDs: the history replayed by BulkRedirect/BulkPin

	Done chan Result
}

// View is Op's durable, JSON-serializable projection. Completion signals are never serializable (spec.md §9); FromView
// always allocates a fresh Done channel so a caller still waiting across a process restart observes a live channel.
type View struct {
	ID        uuid.UUID   `json:"id"`
	Kind      Kind        `json:"kind"`
	CreatedAt time.Time   `json:"created_at"`
	Sender    uuid.UUID   `json:"sender,omitempty"`
	Message   uuid.UUID   `json:"message,omitempty"`
	Content   *Content    `json:"content,omitempty"`
	Recipient uuid.UUID   `json:"recipient,omitempty"`
	Replay    []uuid.UUID `json:"replay,omitempty"`
}

// ToView projects op to its durable view, dropping the completion signal.
func ToView(op Op) View {
	return View{
		ID:        op.ID,
		Kind:      op.Kind,
		CreatedAt: op.CreatedAt,
		Sender:    op.Sender,
		Message:   op.Message,
		Content:   op.Content,
		Recipient: op.Recipient,
		Replay:    op.Replay,
	}
}

// FromView reconstitutes an Op from its durable view, allocating a fresh, unfired Done channel.
func FromView(v View) Op {
	return Op{
		ID:        v.ID,
		Kind:      v.Kind,
		CreatedAt: v.CreatedAt,
		Sender:    v.Sender,
		Message:   v.Message,
		Content:   v.Content,
		Recipient: v.Recipient,
		Replay:    v.Replay,
		Done:      make(chan Result, 1),
	}
}

// NewBroadcast builds a Broadcast op (spec.md §4.6 #1).
func NewBroadcast(now time.Time, sender, message uuid.UUID, content Content) Op {
	return Op{ID: uuid.New(), Kind: KindBroadcast, CreatedAt: now, Sender: sender, Message: message, Content: &content, Done: make(chan Result, 1)}
}

// NewEdit builds an Edit op (spec.md §4.6 #2).
func NewEdit(now time.Time, sender, message uuid.UUID, content Content) Op {
	return Op{ID: uuid.New(), Kind: KindEdit, CreatedAt: now, Sender: sender, Message: message, Content: &content, Done: make(chan Result, 1)}
}

// NewDelete builds a Delete op (spec.md §4.6 #3).
func NewDelete(now time.Time, message uuid.UUID) Op {
	return Op{ID: uuid.New(), Kind: KindDelete, CreatedAt: now, Message: message, Done: make(chan Result, 1)}
}

// NewPin builds a Pin op (spec.md §4.6 #4).
func NewPin(now time.Time, message uuid.UUID) Op {
	return Op{ID: uuid.New(), Kind: KindPin, CreatedAt: now, Message: message, Done: make(chan Result, 1)}
}

// NewUnpin builds an Unpin op (spec.md §4.6 #5).
func NewUnpin(now time.Time, message uuid.UUID) Op {
	return Op{ID: uuid.New(), Kind: KindUnpin, CreatedAt: now, Message: message, Done: make(chan Result, 1)}
}

// NewBulkRedirect builds a BulkRedirect op replaying ordered history to one recipient (spec.md §4.6 #6).
func NewBulkRedirect(now time.Time, recipient uuid.UUID, ordered []uuid.UUID) Op {
	return Op{ID: uuid.New(), Kind: KindBulkRedirect, CreatedAt: now, Recipient: recipient, Replay: ordered, Done: make(chan Result, 1)}
}

// NewBulkPin builds a BulkPin op replaying ordered pinned history to one recipient (spec.md §4.6 #7).
func NewBulkPin(now time.Time, recipient uuid.UUID, ordered []uuid.UUID) Op {
	return Op{ID: uuid.New(), Kind: KindBulkPin, CreatedAt: now, Recipient: recipient, Replay: ordered, Done: make(chan Result, 1)}
}

// New wraps a valkey.Queue with this package's durable view wiring, keyed per relay token per spec.md §6
// "group.{token}.{purpose}" cache key convention.
func New(rdb *redis.Client, groupToken string) *valkey.Queue[Op, View] {
	key := fmt.Sprintf("group.%s.queue", groupToken)
	return valkey.NewQueue[Op, View](rdb, key, ToView, FromView)
}
