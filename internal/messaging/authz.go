package messaging

import (
	"context"

	"github.com/google/uuid"
)

// MembershipReader is the slice of the ledger the gate consults.
type MembershipReader interface {
	GetMembership(ctx context.Context, channelID, userID uuid.UUID) (*Membership, error)
}

// Gate answers the capability questions asked before every mutation. Every
// predicate fails closed: a missing membership row or a lookup error means
// "no", never an error the caller could use to probe for existence.
type Gate struct {
	memberships MembershipReader
}

func NewGate(memberships MembershipReader) *Gate {
	return &Gate{memberships: memberships}
}

func (g *Gate) IsMember(ctx context.Context, channelID, userID uuid.UUID) bool {
	m, err := g.memberships.GetMembership(ctx, channelID, userID)
	return err == nil && m != nil
}

func (g *Gate) IsAdmin(ctx context.Context, channelID, userID uuid.UUID) bool {
	m, err := g.memberships.GetMembership(ctx, channelID, userID)
	return err == nil && m != nil && m.IsAdmin
}

// CanReadChannel: membership is the only visibility requirement.
func (g *Gate) CanReadChannel(ctx context.Context, userID, channelID uuid.UUID) bool {
	return g.IsMember(ctx, channelID, userID)
}

// CanAdminister: any member may perform safe operations; mutating the
// channel itself takes admin standing.
func (g *Gate) CanAdminister(ctx context.Context, userID, channelID uuid.UUID) bool {
	return g.IsAdmin(ctx, channelID, userID)
}

// CanEditOrDelete: messages and reactions belong to their creator alone.
func (g *Gate) CanEditOrDelete(userID, createdBy uuid.UUID) bool {
	return userID == createdBy
}

// CanEditMembership: the membership's own user may edit it, and so may any
// admin of its channel.
func (g *Gate) CanEditMembership(ctx context.Context, requester uuid.UUID, m *Membership) bool {
	if m == nil {
		return false
	}
	if m.UserID == requester {
		return true
	}
	return g.IsAdmin(ctx, m.ChannelID, requester)
}
