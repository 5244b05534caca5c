package messaging

import (
	"time"

	"github.com/google/uuid"
)

type ChannelKind string

const (
	ChannelDirect ChannelKind = "DIRECT"
	ChannelGroup  ChannelKind = "GROUP"
)

type FileType string

const (
	FileImage    FileType = "IMAGE"
	FileDocument FileType = "DOCUMENT"
)

// Channel is a conversation container. Kind never changes after creation;
// title/description/icon only carry meaning for GROUP channels.
type Channel struct {
	ID          uuid.UUID
	Kind        ChannelKind
	Title       *string
	Description *string
	Icon        *string
	CreatedBy   *uuid.UUID
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Membership links a user to a channel. (ChannelID, UserID) is unique.
type Membership struct {
	ID        uuid.UUID
	ChannelID uuid.UUID
	UserID    uuid.UUID
	AddedBy   *uuid.UUID
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member is a membership joined with the user's display attributes.
type Member struct {
	Membership
	Username       string
	Name           string
	ProfilePicture *string
}

// Message is a post in a channel. Channel, author, reply target and
// attachments are fixed at creation; only the body (and the edited flag,
// which moves false -> true once) can change.
type Message struct {
	ID            uuid.UUID
	ChannelID     uuid.UUID
	CreatedBy     uuid.UUID
	Body          string
	Edited        bool
	ReplyTo       *uuid.UUID
	FileIDs       []uuid.UUID
	TaggedUserIDs []uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Reaction is an emoji attached to a message. Only the emoji is mutable.
type Reaction struct {
	ID        uuid.UUID
	MessageID uuid.UUID
	CreatedBy uuid.UUID
	Emoji     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// File is upload metadata. Rows are written once and never mutated.
type File struct {
	ID        uuid.UUID `json:"id"`
	CreatedBy uuid.UUID `json:"created_by"`
	Type      FileType  `json:"type"`
	Locator   string    `json:"file"`
	CreatedAt time.Time `json:"datetime_created"`
	UpdatedAt time.Time `json:"datetime_updated"`
}

// UserSummary is the slice of identity data embedded in representations.
type UserSummary struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	Name           string    `json:"name"`
	ProfilePicture *string   `json:"profile_picture"`
}
