package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/bigkid-dev/Bmovez/internal/apperr"
)

// Service is the surface the HTTP layer calls. Every mutating operation
// consults the gate first, runs the mutation through a repository
// transaction, and only then hands the result to the event publisher.
type Service struct {
	channels IChannelRepository
	messages IMessageRepository
	files    IFileRepository
	gate     *Gate
	events   *Publisher
	log      *slog.Logger
	pageSize int
}

func NewService(channels IChannelRepository, messages IMessageRepository, files IFileRepository,
	gate *Gate, events *Publisher, log *slog.Logger, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Service{
		channels: channels,
		messages: messages,
		files:    files,
		gate:     gate,
		events:   events,
		log:      log,
		pageSize: pageSize,
	}
}

// Gate exposes the authorization predicates to callers outside the service.
func (s *Service) Gate() *Gate { return s.gate }

type CreateGroupInput struct {
	Title       string
	Description *string
	Icon        *string
}

type CreateMessageInput struct {
	Body        string
	ReplyTo     *uuid.UUID
	FileIDs     []uuid.UUID
	TaggedUsers []uuid.UUID
}

// CreateGroupChannel creates a GROUP channel with the creator as founding
// admin.
func (s *Service) CreateGroupChannel(ctx context.Context, creator uuid.UUID, in CreateGroupInput) (*ChannelView, error) {
	ch, err := s.channels.CreateGroup(ctx, in.Title, in.Description, in.Icon, creator)
	if err != nil {
		return nil, err
	}
	return s.channelView(ctx, creator, ch)
}

// ResolveOrCreateDirectChannel finds or creates the one DIRECT channel for
// {actor, other}. Self conversations are allowed.
func (s *Service) ResolveOrCreateDirectChannel(ctx context.Context, actor, other uuid.UUID) (*Channel, error) {
	known, err := s.channels.UserSummaries(ctx, []uuid.UUID{other})
	if err != nil {
		return nil, err
	}
	if _, ok := known[other]; !ok {
		return nil, fmt.Errorf("user %s: %w", other, apperr.ErrNotFound)
	}
	return s.channels.ResolveOrCreateDirect(ctx, actor, other)
}

func (s *Service) ListChannels(ctx context.Context, userID uuid.UUID) ([]ChannelView, error) {
	channels, err := s.channels.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]ChannelView, 0, len(channels))
	for i := range channels {
		view, err := s.channelView(ctx, userID, &channels[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

func (s *Service) GetChannel(ctx context.Context, userID, channelID uuid.UUID) (*ChannelView, error) {
	ch, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanReadChannel(ctx, userID, channelID) {
		return nil, apperr.ErrForbidden
	}
	return s.channelView(ctx, userID, ch)
}

// UpdateChannel changes a GROUP channel's title/description/icon. Admin
// only; DIRECT channels carry none of these attributes.
func (s *Service) UpdateChannel(ctx context.Context, userID, channelID uuid.UUID, patch ChannelPatch) (*ChannelView, error) {
	ch, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.Kind != ChannelGroup {
		return nil, fmt.Errorf("channel %s is not a group: %w", channelID, apperr.ErrInvalidReference)
	}
	if !s.gate.CanAdminister(ctx, userID, channelID) {
		return nil, apperr.ErrForbidden
	}

	updated, err := s.channels.UpdateChannel(ctx, channelID, patch)
	if err != nil {
		return nil, err
	}
	return s.channelView(ctx, userID, updated)
}

// DeleteChannel removes a GROUP channel and, through the repository's
// explicit cascade, everything it owns.
func (s *Service) DeleteChannel(ctx context.Context, userID, channelID uuid.UUID) error {
	ch, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.Kind != ChannelGroup {
		return fmt.Errorf("channel %s is not a group: %w", channelID, apperr.ErrInvalidReference)
	}
	if !s.gate.CanAdminister(ctx, userID, channelID) {
		return apperr.ErrForbidden
	}
	return s.channels.DeleteChannel(ctx, channelID)
}

// AddMembers adds the given users to a GROUP channel. Users that are
// already members are skipped; the batch is atomic.
func (s *Service) AddMembers(ctx context.Context, actor, channelID uuid.UUID, userIDs []uuid.UUID) (*ChannelView, error) {
	ch, err := s.groupChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanAdminister(ctx, actor, channelID) {
		return nil, apperr.ErrForbidden
	}

	if _, err := s.channels.AddMembers(ctx, channelID, userIDs, actor); err != nil {
		return nil, err
	}
	return s.channelView(ctx, actor, ch)
}

// RemoveMembers removes the given users from a GROUP channel. Non-members
// are ignored.
func (s *Service) RemoveMembers(ctx context.Context, actor, channelID uuid.UUID, userIDs []uuid.UUID) (*ChannelView, error) {
	ch, err := s.groupChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanAdminister(ctx, actor, channelID) {
		return nil, apperr.ErrForbidden
	}

	if err := s.channels.RemoveMembers(ctx, channelID, userIDs); err != nil {
		return nil, err
	}
	return s.channelView(ctx, actor, ch)
}

func (s *Service) ListMessages(ctx context.Context, userID, channelID uuid.UUID) ([]MessageView, error) {
	if _, err := s.channels.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	if !s.gate.CanReadChannel(ctx, userID, channelID) {
		return nil, apperr.ErrForbidden
	}

	messages, err := s.messages.ListByChannel(ctx, channelID, s.pageSize)
	if err != nil {
		return nil, err
	}

	views := make([]MessageView, 0, len(messages))
	for i := range messages {
		view, err := s.messageView(ctx, &messages[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

func (s *Service) CreateMessage(ctx context.Context, author, channelID uuid.UUID, in CreateMessageInput) (*MessageView, error) {
	if _, err := s.channels.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	if !s.gate.CanReadChannel(ctx, author, channelID) {
		return nil, apperr.ErrForbidden
	}

	m, err := s.messages.CreateMessage(ctx, &Message{
		ChannelID:     channelID,
		CreatedBy:     author,
		Body:          in.Body,
		ReplyTo:       in.ReplyTo,
		FileIDs:       in.FileIDs,
		TaggedUserIDs: in.TaggedUsers,
	})
	if err != nil {
		return nil, err
	}

	view, err := s.messageView(ctx, m)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ActionMessageCreate, channelID, view, author)
	return view, nil
}

// SendDirectMessage resolves the DIRECT channel for the pair and posts into
// it in one call.
func (s *Service) SendDirectMessage(ctx context.Context, author, recipient uuid.UUID, in CreateMessageInput) (*MessageView, error) {
	ch, err := s.ResolveOrCreateDirectChannel(ctx, author, recipient)
	if err != nil {
		return nil, err
	}
	return s.CreateMessage(ctx, author, ch.ID, in)
}

func (s *Service) GetMessage(ctx context.Context, userID, channelID, messageID uuid.UUID) (*MessageView, error) {
	if !s.gate.CanReadChannel(ctx, userID, channelID) {
		return nil, apperr.ErrForbidden
	}
	m, err := s.messages.GetMessage(ctx, channelID, messageID)
	if err != nil {
		return nil, err
	}
	return s.messageView(ctx, m)
}

// UpdateMessage replaces the body and marks the message edited. Channel,
// author, reply target and attachments are not touched no matter what the
// caller sent alongside the new body.
func (s *Service) UpdateMessage(ctx context.Context, actor, channelID, messageID uuid.UUID, body string) (*MessageView, error) {
	m, err := s.messages.GetMessage(ctx, channelID, messageID)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanEditOrDelete(actor, m.CreatedBy) {
		return nil, apperr.ErrForbidden
	}

	updated, err := s.messages.UpdateMessageBody(ctx, messageID, body)
	if err != nil {
		return nil, err
	}

	view, err := s.messageView(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ActionMessageEdit, channelID, view, actor)
	return view, nil
}

// DeleteMessage removes a message and its reactions. The representation is
// captured before the delete since the rows are gone afterwards.
func (s *Service) DeleteMessage(ctx context.Context, actor, channelID, messageID uuid.UUID) error {
	m, err := s.messages.GetMessage(ctx, channelID, messageID)
	if err != nil {
		return err
	}
	if !s.gate.CanEditOrDelete(actor, m.CreatedBy) {
		return apperr.ErrForbidden
	}

	view, err := s.messageView(ctx, m)
	if err != nil {
		return err
	}
	if err := s.messages.DeleteMessage(ctx, messageID); err != nil {
		return err
	}

	s.events.Publish(ActionMessageDelete, channelID, view, actor)
	return nil
}

func (s *Service) CreateReaction(ctx context.Context, author, channelID, messageID uuid.UUID, emoji string) (*ReactionView, error) {
	if !s.gate.CanReadChannel(ctx, author, channelID) {
		return nil, apperr.ErrForbidden
	}
	m, err := s.messages.GetMessage(ctx, channelID, messageID)
	if err != nil {
		return nil, err
	}

	re, err := s.messages.CreateReaction(ctx, &Reaction{
		MessageID: m.ID,
		CreatedBy: author,
		Emoji:     emoji,
	})
	if err != nil {
		return nil, err
	}

	view, err := s.reactionView(ctx, re, m)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ActionReactionCreate, channelID, view, author)
	return view, nil
}

// UpdateReaction changes the emoji; the message reference stays fixed.
func (s *Service) UpdateReaction(ctx context.Context, actor, channelID, reactionID uuid.UUID, emoji string) (*ReactionView, error) {
	re, err := s.messages.GetReaction(ctx, channelID, reactionID)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanEditOrDelete(actor, re.CreatedBy) {
		return nil, apperr.ErrForbidden
	}

	updated, err := s.messages.UpdateReactionEmoji(ctx, reactionID, emoji)
	if err != nil {
		return nil, err
	}

	view, err := s.reactionView(ctx, updated, nil)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ActionReactionEdit, channelID, view, actor)
	return view, nil
}

func (s *Service) DeleteReaction(ctx context.Context, actor, channelID, reactionID uuid.UUID) error {
	re, err := s.messages.GetReaction(ctx, channelID, reactionID)
	if err != nil {
		return err
	}
	if !s.gate.CanEditOrDelete(actor, re.CreatedBy) {
		return apperr.ErrForbidden
	}

	view, err := s.reactionView(ctx, re, nil)
	if err != nil {
		return err
	}
	if err := s.messages.DeleteReaction(ctx, reactionID); err != nil {
		return err
	}

	s.events.Publish(ActionReactionDelete, channelID, view, actor)
	return nil
}

// CreateFile records upload metadata. The locator is opaque to this layer.
func (s *Service) CreateFile(ctx context.Context, uploader uuid.UUID, fileType FileType, locator string) (*File, error) {
	return s.files.CreateFile(ctx, &File{
		CreatedBy: uploader,
		Type:      fileType,
		Locator:   locator,
	})
}

// UpdateFile is a defined no-op: file metadata is immutable once uploaded,
// and an update request succeeds without changing anything.
func (s *Service) UpdateFile(ctx context.Context, id uuid.UUID) (*File, error) {
	return s.files.GetFile(ctx, id)
}

func (s *Service) ListChannelFiles(ctx context.Context, userID, channelID uuid.UUID) ([]File, error) {
	if _, err := s.channels.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	if !s.gate.CanReadChannel(ctx, userID, channelID) {
		return nil, apperr.ErrForbidden
	}
	return s.messages.ListChannelFiles(ctx, channelID)
}

// ChannelIDsForUser lists the channels a user belongs to; the websocket
// gateway uses it to scope event delivery.
func (s *Service) ChannelIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	channels, err := s.channels.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return lo.Map(channels, func(ch Channel, _ int) uuid.UUID { return ch.ID }), nil
}

func (s *Service) groupChannel(ctx context.Context, channelID uuid.UUID) (*Channel, error) {
	ch, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.Kind != ChannelGroup {
		return nil, fmt.Errorf("channel %s is not a group: %w", channelID, apperr.ErrNotFound)
	}
	return ch, nil
}

func (s *Service) channelView(ctx context.Context, viewer uuid.UUID, ch *Channel) (*ChannelView, error) {
	members, err := s.channels.Members(ctx, ch.ID)
	if err != nil {
		return nil, err
	}

	var view ChannelView
	if ch.Kind == ChannelGroup {
		view = GroupChannelView(*ch, members)
	} else {
		view = DirectChannelView(*ch, viewer, members)
	}
	return &view, nil
}

func (s *Service) messageView(ctx context.Context, m *Message) (*MessageView, error) {
	reactions, err := s.messages.ListReactions(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	files, err := s.files.GetFiles(ctx, m.FileIDs)
	if err != nil {
		return nil, err
	}

	ids := append([]uuid.UUID{m.CreatedBy}, m.TaggedUserIDs...)
	for _, re := range reactions {
		ids = append(ids, re.CreatedBy)
	}
	users, err := s.channels.UserSummaries(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, err
	}

	view := &MessageView{
		ID:        m.ID,
		Body:      m.Body,
		Edited:    m.Edited,
		CreatedBy: summaryOf(users, m.CreatedBy),
		ChannelID: m.ChannelID,
		ReplyTo:   m.ReplyTo,
		Files:     files,
		TaggedUsers: lo.Map(m.TaggedUserIDs, func(id uuid.UUID, _ int) UserSummary {
			return summaryOf(users, id)
		}),
		Reactions: lo.Map(reactions, func(re Reaction, _ int) ReactionSummary {
			return ReactionSummary{
				ID:        re.ID,
				CreatedBy: summaryOf(users, re.CreatedBy),
				Emoji:     re.Emoji,
				CreatedAt: re.CreatedAt,
			}
		}),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	return view, nil
}

// reactionView builds the standalone representation. The parent message is
// loaded when the caller does not already hold it.
func (s *Service) reactionView(ctx context.Context, re *Reaction, parent *Message) (*ReactionView, error) {
	if parent == nil {
		m, err := s.messages.GetMessageByID(ctx, re.MessageID)
		if err != nil {
			return nil, err
		}
		parent = m
	}

	messageView, err := s.messageView(ctx, parent)
	if err != nil {
		return nil, err
	}
	users, err := s.channels.UserSummaries(ctx, []uuid.UUID{re.CreatedBy})
	if err != nil {
		return nil, err
	}

	return &ReactionView{
		ID:        re.ID,
		Emoji:     re.Emoji,
		CreatedBy: summaryOf(users, re.CreatedBy),
		Message:   *messageView,
		CreatedAt: re.CreatedAt,
		UpdatedAt: re.UpdatedAt,
	}, nil
}

func summaryOf(users map[uuid.UUID]UserSummary, id uuid.UUID) UserSummary {
	if u, ok := users[id]; ok {
		return u
	}
	return UserSummary{ID: id}
}
