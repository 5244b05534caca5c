package messaging

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ChannelView is the public shape of a channel. DIRECT and GROUP channels
// project differently, so the two constructors below are the only way to
// build one; nothing dispatches on a type hierarchy.
type ChannelView struct {
	ID          uuid.UUID    `json:"id"`
	Kind        ChannelKind  `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Icon        *string      `json:"icon"`
	CreatedBy   *uuid.UUID   `json:"created_by,omitempty"`
	IsActive    bool         `json:"is_active"`
	Users       []MemberView `json:"users"`
	UpdatedAt   time.Time    `json:"datetime_updated"`
}

type MemberView struct {
	UserSummary
	MembershipData *MembershipData `json:"membership_data"`
}

type MembershipData struct {
	AddedBy   *uuid.UUID `json:"added_by"`
	IsAdmin   bool       `json:"is_admin"`
	CreatedAt time.Time  `json:"datetime_created"`
	UpdatedAt time.Time  `json:"datetime_updated"`
}

// GroupChannelView renders a GROUP channel with its full membership data.
func GroupChannelView(ch Channel, members []Member) ChannelView {
	return ChannelView{
		ID:          ch.ID,
		Kind:        ch.Kind,
		Title:       deref(ch.Title),
		Description: deref(ch.Description),
		Icon:        ch.Icon,
		CreatedBy:   ch.CreatedBy,
		IsActive:    ch.IsActive,
		UpdatedAt:   ch.UpdatedAt,
		Users: lo.Map(members, func(m Member, _ int) MemberView {
			return MemberView{
				UserSummary: m.summary(),
				MembershipData: &MembershipData{
					AddedBy:   m.AddedBy,
					IsAdmin:   m.IsAdmin,
					CreatedAt: m.CreatedAt,
					UpdatedAt: m.UpdatedAt,
				},
			}
		}),
	}
}

// DirectChannelView renders a DIRECT channel as its counterpart user: their
// name becomes the title, their picture the icon. For a self-conversation
// the counterpart is the viewer.
func DirectChannelView(ch Channel, viewer uuid.UUID, members []Member) ChannelView {
	counterpart, found := lo.Find(members, func(m Member) bool {
		return m.UserID != viewer
	})
	if !found && len(members) > 0 {
		counterpart = members[0]
	}

	return ChannelView{
		ID:        ch.ID,
		Kind:      ch.Kind,
		Title:     counterpart.Name,
		Icon:      counterpart.ProfilePicture,
		IsActive:  ch.IsActive,
		UpdatedAt: ch.UpdatedAt,
		Users:     []MemberView{{UserSummary: counterpart.summary()}},
	}
}

func (m Member) summary() UserSummary {
	return UserSummary{
		ID:             m.UserID,
		Username:       m.Username,
		Name:           m.Name,
		ProfilePicture: m.ProfilePicture,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
