package domain

import (
	"strings"
	"time"
)

// Role is the persona a user picks before chatting. The zero value is unset.
type Role string

const (
	RoleUnset    Role = ""
	RoleFarmer   Role = "farmer"
	RoleGardener Role = "gardener"
)

// ParseRole accepts "farmer"/"gardener" (any case) and the selector shortcuts "1"/"2".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "farmer", "1":
		return RoleFarmer, nil
	case "gardener", "2":
		return RoleGardener, nil
	default:
		return RoleUnset, ErrInvalidRole
	}
}

func (r Role) Valid() bool { return r == RoleFarmer || r == RoleGardener }

// Sender returns the message sender that speaks for this role.
func (r Role) Sender() Sender { return Sender(r) }

// Sender identifies who authored a message.
type Sender string

const (
	SenderFarmer   Sender = "farmer"
	SenderGardener Sender = "gardener"
	SenderAI       Sender = "ai"
)

// IsUser reports whether the sender is a human participant.
func (s Sender) IsUser() bool { return s == SenderFarmer || s == SenderGardener }

// MessageType tags how a user message was produced. Empty means untagged.
type MessageType string

const (
	TypeNone  MessageType = ""
	TypeText  MessageType = "text"
	TypeVoice MessageType = "voice"
	TypeImage MessageType = "image"
)

// Message is one entry of a conversation. Messages are never edited once appended.
type Message struct {
	ID        string      `json:"id"`
	Sender    Sender      `json:"sender"`
	Text      string      `json:"text"`
	AudioURL  string      `json:"audio_url,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Type      MessageType `json:"type,omitempty"`
}
