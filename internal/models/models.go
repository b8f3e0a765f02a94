package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// User represents a registered ChiwiChat identity.
type User struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
	CreatedAt time.Time
}

// DisplayName is the user's human-readable name, falling back to the username
// when no personal names were registered.
func (u User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return u.Username
	}
	return name
}

// Conversation is the durable pairing of exactly two participants. The
// unordered pair {UserAID, UserBID} is unique system-wide; (A,B) and (B,A)
// denote the same conversation.
type Conversation struct {
	ID             string
	UserAID        string
	UserAName      string
	UserBID        string
	UserBName      string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// HasParticipant reports whether the user is one of the two participants.
func (c Conversation) HasParticipant(userID string) bool {
	return userID == c.UserAID || userID == c.UserBID
}

// OtherParticipant returns the participant that is not userID. ok is false
// when userID is not a participant at all.
func (c Conversation) OtherParticipant(userID string) (id, name string, ok bool) {
	switch userID {
	case c.UserAID:
		return c.UserBID, c.UserBName, true
	case c.UserBID:
		return c.UserAID, c.UserAName, true
	default:
		return "", "", false
	}
}

// MessageStatus is the delivery-state enumeration for a message. It only ever
// increases over a message's lifetime.
type MessageStatus int16

const (
	StatusSent MessageStatus = iota
	StatusDelivered
	StatusRead
)

// Valid reports whether the status is one of the known states.
func (s MessageStatus) Valid() bool {
	return s >= StatusSent && s <= StatusRead
}

func (s MessageStatus) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	default:
		return fmt.Sprintf("status(%d)", int16(s))
	}
}

// ParseMessageStatus converts the wire name of a status back to its value.
func ParseMessageStatus(s string) (MessageStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sent":
		return StatusSent, nil
	case "delivered":
		return StatusDelivered, nil
	case "read":
		return StatusRead, nil
	default:
		return 0, fmt.Errorf("unknown message status %q", s)
	}
}

// Message is a single directed communication inside a conversation. Ciphertext
// is the opaque blob produced by the encryption gateway; plaintext never
// touches persistence.
type Message struct {
	ID             string
	ConversationID string
	ReceiverID     string
	Ciphertext     string
	Status         MessageStatus
	SentAt         time.Time
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"token"`
	AccessExpiresAt  time.Time `json:"tokenExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

// FieldErrors maps field names to violation descriptions. It is returned as a
// value so callers handle validation failures uniformly with other domain
// errors.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e[field]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
