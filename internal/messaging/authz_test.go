package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// erroringMembershipReader simulates a ledger lookup failure.
type erroringMembershipReader struct{}

func (erroringMembershipReader) GetMembership(ctx context.Context, channelID, userID uuid.UUID) (*Membership, error) {
	return nil, errors.New("connection reset")
}

func TestGateFailsClosedOnLookupError(t *testing.T) {
	gate := NewGate(erroringMembershipReader{})
	channelID, userID := uuid.New(), uuid.New()

	require.False(t, gate.IsMember(context.Background(), channelID, userID))
	require.False(t, gate.IsAdmin(context.Background(), channelID, userID))
	require.False(t, gate.CanReadChannel(context.Background(), userID, channelID))
	require.False(t, gate.CanAdminister(context.Background(), userID, channelID))
}

func TestGateMembershipPredicates(t *testing.T) {
	repo := newFakeChannelRepo()
	gate := NewGate(repo)

	admin := repo.addUser("admin")
	member := repo.addUser("member")
	outsider := repo.addUser("outsider")

	channelID := uuid.New()
	repo.putMembership(channelID, admin, true, nil)
	repo.putMembership(channelID, member, false, &admin)

	require.True(t, gate.IsMember(context.Background(), channelID, admin))
	require.True(t, gate.IsMember(context.Background(), channelID, member))
	require.False(t, gate.IsMember(context.Background(), channelID, outsider))

	require.True(t, gate.IsAdmin(context.Background(), channelID, admin))
	require.False(t, gate.IsAdmin(context.Background(), channelID, member))
}

func TestCanEditOrDelete(t *testing.T) {
	gate := NewGate(newFakeChannelRepo())
	creator := uuid.New()

	require.True(t, gate.CanEditOrDelete(creator, creator))
	require.False(t, gate.CanEditOrDelete(uuid.New(), creator))
}

func TestCanEditMembership(t *testing.T) {
	repo := newFakeChannelRepo()
	gate := NewGate(repo)

	admin := repo.addUser("admin")
	member := repo.addUser("member")
	other := repo.addUser("other")

	channelID := uuid.New()
	repo.putMembership(channelID, admin, true, nil)
	repo.putMembership(channelID, member, false, &admin)

	m, err := repo.GetMembership(context.Background(), channelID, member)
	require.NoError(t, err)

	require.True(t, gate.CanEditMembership(context.Background(), member, m), "own membership")
	require.True(t, gate.CanEditMembership(context.Background(), admin, m), "channel admin")
	require.False(t, gate.CanEditMembership(context.Background(), other, m))
	require.False(t, gate.CanEditMembership(context.Background(), admin, nil))
}
