package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/bigkid-dev/Bmovez/internal/apperr"
)

// In-memory doubles for the repository interfaces. They keep the same error
// semantics as the SQL implementations so the service behaves identically.

type fakeChannelRepo struct {
	mu          sync.Mutex
	channels    map[uuid.UUID]*Channel
	memberships map[uuid.UUID]map[uuid.UUID]*Membership
	users       map[uuid.UUID]UserSummary
}

func newFakeChannelRepo() *fakeChannelRepo {
	return &fakeChannelRepo{
		channels:    make(map[uuid.UUID]*Channel),
		memberships: make(map[uuid.UUID]map[uuid.UUID]*Membership),
		users:       make(map[uuid.UUID]UserSummary),
	}
}

func (r *fakeChannelRepo) addUser(name string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.users[id] = UserSummary{ID: id, Username: name, Name: name}
	return id
}

func (r *fakeChannelRepo) putMembership(channelID, userID uuid.UUID, isAdmin bool, addedBy *uuid.UUID) {
	if r.memberships[channelID] == nil {
		r.memberships[channelID] = make(map[uuid.UUID]*Membership)
	}
	r.memberships[channelID][userID] = &Membership{
		ID:        uuid.New(),
		ChannelID: channelID,
		UserID:    userID,
		AddedBy:   addedBy,
		IsAdmin:   isAdmin,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func (r *fakeChannelRepo) CreateGroup(ctx context.Context, title string, description, icon *string, creator uuid.UUID) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := &Channel{
		ID:          uuid.New(),
		Kind:        ChannelGroup,
		Title:       &title,
		Description: description,
		Icon:        icon,
		CreatedBy:   &creator,
		IsActive:    true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	r.channels[ch.ID] = ch
	r.putMembership(ch.ID, creator, true, &creator)
	return ch, nil
}

func (r *fakeChannelRepo) ResolveOrCreateDirect(ctx context.Context, actor, other uuid.UUID) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := 2
	if actor == other {
		want = 1
	}
	for id, ch := range r.channels {
		if ch.Kind != ChannelDirect {
			continue
		}
		members := r.memberships[id]
		if len(members) != want {
			continue
		}
		if _, ok := members[actor]; !ok {
			continue
		}
		if _, ok := members[other]; !ok {
			continue
		}
		return ch, nil
	}

	ch := &Channel{
		ID:        uuid.New(),
		Kind:      ChannelDirect,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	r.channels[ch.ID] = ch
	r.putMembership(ch.ID, other, true, &actor)
	if actor != other {
		r.putMembership(ch.ID, actor, true, &actor)
	}
	return ch, nil
}

func (r *fakeChannelRepo) GetChannel(ctx context.Context, id uuid.UUID) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", id, apperr.ErrNotFound)
	}
	cp := *ch
	return &cp, nil
}

func (r *fakeChannelRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Channel
	for id, members := range r.memberships {
		if _, ok := members[userID]; ok {
			out = append(out, *r.channels[id])
		}
	}
	return out, nil
}

func (r *fakeChannelRepo) UpdateChannel(ctx context.Context, id uuid.UUID, patch ChannelPatch) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", id, apperr.ErrNotFound)
	}
	if patch.Title != nil {
		ch.Title = patch.Title
	}
	if patch.Description != nil {
		ch.Description = patch.Description
	}
	if patch.Icon != nil {
		ch.Icon = patch.Icon
	}
	ch.UpdatedAt = time.Now()
	cp := *ch
	return &cp, nil
}

func (r *fakeChannelRepo) DeleteChannel(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[id]; !ok {
		return fmt.Errorf("channel %s: %w", id, apperr.ErrNotFound)
	}
	delete(r.channels, id)
	delete(r.memberships, id)
	return nil
}

func (r *fakeChannelRepo) Members(ctx context.Context, channelID uuid.UUID) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Member
	for userID, m := range r.memberships[channelID] {
		u := r.users[userID]
		out = append(out, Member{
			Membership:     *m,
			Username:       u.Username,
			Name:           u.Name,
			ProfilePicture: u.ProfilePicture,
		})
	}
	return out, nil
}

func (r *fakeChannelRepo) GetMembership(ctx context.Context, channelID, userID uuid.UUID) (*Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memberships[channelID][userID]
	if !ok {
		return nil, fmt.Errorf("membership: %w", apperr.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (r *fakeChannelRepo) AddMembers(ctx context.Context, channelID uuid.UUID, userIDs []uuid.UUID, addedBy uuid.UUID) ([]Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var added []Membership
	for _, id := range lo.Uniq(userIDs) {
		if _, ok := r.memberships[channelID][id]; ok {
			continue
		}
		r.putMembership(channelID, id, false, &addedBy)
		added = append(added, *r.memberships[channelID][id])
	}
	return added, nil
}

func (r *fakeChannelRepo) RemoveMembers(ctx context.Context, channelID uuid.UUID, userIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range userIDs {
		delete(r.memberships[channelID], id)
	}
	return nil
}

func (r *fakeChannelRepo) UserSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]UserSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]UserSummary)
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type fakeMessageRepo struct {
	mu        sync.Mutex
	messages  map[uuid.UUID]*Message
	order     []uuid.UUID // creation order, oldest first
	seq       int
	reactions map[uuid.UUID]*Reaction
	files     *fakeFileRepo
}

func newFakeMessageRepo(files *fakeFileRepo) *fakeMessageRepo {
	return &fakeMessageRepo{
		messages:  make(map[uuid.UUID]*Message),
		reactions: make(map[uuid.UUID]*Reaction),
		files:     files,
	}
}

func (r *fakeMessageRepo) CreateMessage(ctx context.Context, m *Message) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ReplyTo != nil {
		target, ok := r.messages[*m.ReplyTo]
		if !ok || target.ChannelID != m.ChannelID {
			return nil, fmt.Errorf("reply target: %w", apperr.ErrInvalidReference)
		}
	}
	for _, id := range m.FileIDs {
		if _, ok := r.files.files[id]; !ok {
			return nil, fmt.Errorf("file %s: %w", id, apperr.ErrInvalidReference)
		}
	}
	m.ID = uuid.New()
	// Distinct, strictly increasing timestamps so created_at ordering is
	// observable (time.Now alone can collide within a test).
	r.seq++
	m.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Millisecond)
	m.UpdatedAt = m.CreatedAt
	r.messages[m.ID] = m
	r.order = append(r.order, m.ID)
	cp := *m
	return &cp, nil
}

func (r *fakeMessageRepo) GetMessage(ctx context.Context, channelID, id uuid.UUID) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.ChannelID != channelID {
		return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMessageRepo) GetMessageByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMessageRepo) UpdateMessageBody(ctx context.Context, id uuid.UUID, body string) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	m.Body = body
	m.Edited = true
	m.UpdatedAt = time.Now()
	cp := *m
	return &cp, nil
}

func (r *fakeMessageRepo) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[id]; !ok {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	for reID, re := range r.reactions {
		if re.MessageID == id {
			delete(r.reactions, reID)
		}
	}
	for _, m := range r.messages {
		if m.ReplyTo != nil && *m.ReplyTo == id {
			m.ReplyTo = nil
		}
	}
	delete(r.messages, id)
	return nil
}

// ListByChannel returns newest first, limit counted from the newest end,
// matching the SQL implementation's ORDER BY created_at DESC LIMIT.
func (r *fakeMessageRepo) ListByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for i := len(r.order) - 1; i >= 0; i-- {
		m, ok := r.messages[r.order[i]]
		if !ok || m.ChannelID != channelID {
			continue
		}
		out = append(out, *m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) ListChannelFiles(ctx context.Context, channelID uuid.UUID) ([]File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var out []File
	for _, m := range r.messages {
		if m.ChannelID != channelID {
			continue
		}
		for _, id := range m.FileIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			if f, ok := r.files.files[id]; ok {
				out = append(out, *f)
			}
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) CreateReaction(ctx context.Context, re *Reaction) (*Reaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	re.ID = uuid.New()
	re.CreatedAt = time.Now()
	re.UpdatedAt = re.CreatedAt
	r.reactions[re.ID] = re
	cp := *re
	return &cp, nil
}

func (r *fakeMessageRepo) GetReaction(ctx context.Context, channelID, id uuid.UUID) (*Reaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	re, ok := r.reactions[id]
	if !ok {
		return nil, fmt.Errorf("reaction %s: %w", id, apperr.ErrNotFound)
	}
	m, ok := r.messages[re.MessageID]
	if !ok || m.ChannelID != channelID {
		return nil, fmt.Errorf("reaction %s: %w", id, apperr.ErrNotFound)
	}
	cp := *re
	return &cp, nil
}

func (r *fakeMessageRepo) UpdateReactionEmoji(ctx context.Context, id uuid.UUID, emoji string) (*Reaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	re, ok := r.reactions[id]
	if !ok {
		return nil, fmt.Errorf("reaction %s: %w", id, apperr.ErrNotFound)
	}
	re.Emoji = emoji
	re.UpdatedAt = time.Now()
	cp := *re
	return &cp, nil
}

func (r *fakeMessageRepo) DeleteReaction(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reactions[id]; !ok {
		return fmt.Errorf("reaction %s: %w", id, apperr.ErrNotFound)
	}
	delete(r.reactions, id)
	return nil
}

func (r *fakeMessageRepo) ListReactions(ctx context.Context, messageID uuid.UUID) ([]Reaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Reaction
	for _, re := range r.reactions {
		if re.MessageID == messageID {
			out = append(out, *re)
		}
	}
	return out, nil
}

type fakeFileRepo struct {
	mu    sync.Mutex
	files map[uuid.UUID]*File
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{files: make(map[uuid.UUID]*File)}
}

func (r *fakeFileRepo) CreateFile(ctx context.Context, f *File) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.ID = uuid.New()
	f.CreatedAt = time.Now()
	f.UpdatedAt = f.CreatedAt
	r.files[f.ID] = f
	cp := *f
	return &cp, nil
}

func (r *fakeFileRepo) GetFile(ctx context.Context, id uuid.UUID) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, apperr.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (r *fakeFileRepo) GetFiles(ctx context.Context, ids []uuid.UUID) ([]File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []File
	for _, id := range ids {
		if f, ok := r.files[id]; ok {
			out = append(out, *f)
		}
	}
	return out, nil
}

// fakeTransport records everything published and can simulate a broker that
// is down.
type fakeTransport struct {
	mu        sync.Mutex
	published []publishedEvent
	fail      error
}

type publishedEvent struct {
	topic   string
	payload []byte
}

func (t *fakeTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return t.fail
	}
	t.published = append(t.published, publishedEvent{topic: topic, payload: payload})
	return nil
}

func (t *fakeTransport) events() []publishedEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]publishedEvent(nil), t.published...)
}

type testEnv struct {
	svc       *Service
	channels  *fakeChannelRepo
	messages  *fakeMessageRepo
	fileRepo  *fakeFileRepo
	transport *fakeTransport
}

func newTestEnv() *testEnv {
	channels := newFakeChannelRepo()
	files := newFakeFileRepo()
	messages := newFakeMessageRepo(files)
	transport := &fakeTransport{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewService(channels, messages, files, NewGate(channels),
		NewPublisher(transport, log, time.Second), log, 50)

	return &testEnv{
		svc:       svc,
		channels:  channels,
		messages:  messages,
		fileRepo:  files,
		transport: transport,
	}
}
