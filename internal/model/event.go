package model

import "time"

// MessageKind classifies an inbound event. It is assigned once by the
// transport adapter and is the only message-shape information the rest of
// the pipeline looks at.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindText
	KindMedia
	KindDeleted
	KindEdited
)

// String returns the kind name used in logs.
func (k MessageKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMedia:
		return "media"
	case KindDeleted:
		return "deleted"
	case KindEdited:
		return "edited"
	default:
		return "unknown"
	}
}

// Chat log verbs.
const (
	ActionSent    = "sent"
	ActionEdited  = "edited"
	ActionDeleted = "deleted"
)

// Action returns the chat log verb for the kind.
func (k MessageKind) Action() string {
	switch k {
	case KindDeleted:
		return ActionDeleted
	case KindEdited:
		return ActionEdited
	default:
		return ActionSent
	}
}

// InboundEvent is one message observed by the transport.
type InboundEvent struct {
	ID             string
	ConversationID string
	// SenderID is the raw, unresolved sender identifier.
	SenderID  string
	PushName  string
	Kind      MessageKind
	Text      string
	MediaType string
	// Mentions holds raw identifiers of users referenced by the message,
	// the replied-to sender first.
	Mentions   []string
	ReceivedAt time.Time
}

// HasText reports whether the event carries extractable text.
func (e *InboundEvent) HasText() bool {
	return e.Text != ""
}

// DeliveryType mirrors the transport's notion of live vs. replayed events.
type DeliveryType string

const (
	DeliveryNotify DeliveryType = "notify"
	DeliveryAppend DeliveryType = "append"
)

// Batch is the unit enqueued into the event queue.
type Batch struct {
	RequestID string
	Type      DeliveryType
	Events    []InboundEvent
}
