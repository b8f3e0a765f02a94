package chat

import "errors"

var (
	// ErrConversationNotFound indicates no conversation exists for the id.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrNotParticipant indicates the requester is neither participant of the
	// conversation. Data never leaks past this check.
	ErrNotParticipant = errors.New("not a conversation participant")
	// ErrInvalidCursor indicates a pagination cursor that lies in the future.
	ErrInvalidCursor = errors.New("cursor must not be in the future")
)
