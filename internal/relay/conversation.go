package relay

import "sync"

// Status tags a pending one-shot conversation state for a (chat, user) pair (spec.md §4.8 "Conversation state").
// The FSM has no external transitions: the next inbound message from that pair consumes and clears it.
type Status int

const (
	// StatusNone means no conversation is pending; inbound text follows the ordinary send path.
	StatusNone Status = iota
	// StatusUseCode expects the next text to be a redeem code.
	StatusUseCode
	// StatusNGToken expects the next forwarded text to carry a new bot token.
	StatusNGToken
	// StatusEWMMMessage expects a new welcome message body.
	StatusEWMMMessage
	// StatusEWMMButton expects a new welcome message button spec.
	StatusEWMMButton
	// StatusECIInstruction expects a new chat instruction body.
	StatusECIInstruction
	// StatusEPPassword expects a new group join password.
	StatusEPPassword
	// StatusGPPassword expects a joining user's password attempt.
	StatusGPPassword
	// StatusSMMask expects the member's desired pinned mask.
	StatusSMMask
	// StatusCIConfirm expects the member's acknowledgement of the chat instruction before their first send.
	StatusCIConfirm
)

// conversationKey identifies one (chat, user) conversation slot.
type conversationKey struct {
	ChatID int64
	UserID int64
}

// Conversation is the one-shot carrier attached to a pending Status: e.g. the acknowledgement channel
// presentChatInstruction waits on for StatusCIConfirm, or nothing at all for statuses that need no extra payload.
type Conversation struct {
	Status  Status
	Carrier any
}

// ConversationTable is the per-relay `(chat_id, user_id) → (status, carrier)` map of spec.md §4.8.
type ConversationTable struct {
	mu    sync.Mutex
	state map[conversationKey]Conversation
}

// NewConversationTable creates an empty table.
func NewConversationTable() *ConversationTable {
	return &ConversationTable{state: make(map[conversationKey]Conversation)}
}

// Set establishes status (with an optional carrier) for (chatID, userID). Passing StatusNone clears the entry,
// matching spec.md §4.8's `set_conversation(ctx, status=nil)`.
func (t *ConversationTable) Set(chatID, userID int64, status Status, carrier any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := conversationKey{chatID, userID}
	if status == StatusNone {
		delete(t.state, key)
		return
	}
	t.state[key] = Conversation{Status: status, Carrier: carrier}
}

// Clear removes any pending conversation for (chatID, userID). Equivalent to Set(chatID, userID, StatusNone, nil).
func (t *ConversationTable) Clear(chatID, userID int64) {
	t.Set(chatID, userID, StatusNone, nil)
}

// Consume atomically reads and clears the conversation for (chatID, userID): the next inbound message consumes the
// status and it does not apply again (spec.md §4.8: "the FSM has no external transitions").
func (t *ConversationTable) Consume(chatID, userID int64) (Conversation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := conversationKey{chatID, userID}
	c, ok := t.state[key]
	if ok {
		delete(t.state, key)
	}
	return c, ok
}
