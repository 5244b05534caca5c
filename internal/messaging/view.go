package messaging

import (
	"time"

	"github.com/google/uuid"
)

// MessageView is the public shape of a message: author, attachments, tags
// and reactions resolved to full objects. It doubles as the event payload.
type MessageView struct {
	ID          uuid.UUID         `json:"id"`
	Body        string            `json:"text"`
	Edited      bool              `json:"edited"`
	CreatedBy   UserSummary       `json:"created_by"`
	ChannelID   uuid.UUID         `json:"channel"`
	ReplyTo     *uuid.UUID        `json:"replying"`
	Files       []File            `json:"files"`
	TaggedUsers []UserSummary     `json:"tagged_users"`
	Reactions   []ReactionSummary `json:"reactions"`
	CreatedAt   time.Time         `json:"datetime_created"`
	UpdatedAt   time.Time         `json:"datetime_updated"`
}

// ReactionSummary is the compact form embedded in a MessageView.
type ReactionSummary struct {
	ID        uuid.UUID   `json:"id"`
	CreatedBy UserSummary `json:"created_by"`
	Emoji     string      `json:"emoji"`
	CreatedAt time.Time   `json:"datetime_created"`
}

// ReactionView is the standalone representation, carrying its message.
type ReactionView struct {
	ID        uuid.UUID   `json:"id"`
	Emoji     string      `json:"emoji"`
	CreatedBy UserSummary `json:"created_by"`
	Message   MessageView `json:"message"`
	CreatedAt time.Time   `json:"datetime_created"`
	UpdatedAt time.Time   `json:"datetime_updated"`
}
