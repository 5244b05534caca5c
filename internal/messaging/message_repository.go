package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/bigkid-dev/Bmovez/internal/apperr"
)

type IMessageRepository interface {
	CreateMessage(ctx context.Context, m *Message) (*Message, error)
	GetMessage(ctx context.Context, channelID, id uuid.UUID) (*Message, error)
	GetMessageByID(ctx context.Context, id uuid.UUID) (*Message, error)
	UpdateMessageBody(ctx context.Context, id uuid.UUID, body string) (*Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) error
	ListByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]Message, error)
	ListChannelFiles(ctx context.Context, channelID uuid.UUID) ([]File, error)
	CreateReaction(ctx context.Context, re *Reaction) (*Reaction, error)
	GetReaction(ctx context.Context, channelID, id uuid.UUID) (*Reaction, error)
	UpdateReactionEmoji(ctx context.Context, id uuid.UUID, emoji string) (*Reaction, error)
	DeleteReaction(ctx context.Context, id uuid.UUID) error
	ListReactions(ctx context.Context, messageID uuid.UUID) ([]Reaction, error)
}

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateMessage persists a message with its attachment and tag links. The
// reply target, when present, must be a message of the same channel.
func (r *MessageRepository) CreateMessage(ctx context.Context, m *Message) (*Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if m.ReplyTo != nil {
		var replyChannel uuid.UUID
		err := tx.QueryRowContext(ctx,
			`SELECT channel_id FROM messages WHERE id = $1`, *m.ReplyTo).Scan(&replyChannel)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reply target %s: %w", *m.ReplyTo, apperr.ErrInvalidReference)
		}
		if err != nil {
			return nil, err
		}
		if replyChannel != m.ChannelID {
			return nil, fmt.Errorf("reply target %s is in another channel: %w",
				*m.ReplyTo, apperr.ErrInvalidReference)
		}
	}

	m.ID = uuid.New()
	query := `INSERT INTO messages (id, channel_id, created_by, body, reply_to)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING edited, created_at, updated_at`
	err = tx.QueryRowContext(ctx, query, m.ID, m.ChannelID, m.CreatedBy, m.Body, m.ReplyTo).
		Scan(&m.Edited, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	m.FileIDs = lo.Uniq(m.FileIDs)
	for _, fileID := range m.FileIDs {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO message_files (message_id, file_id)
             SELECT $1, id FROM files WHERE id = $2`, m.ID, fileID)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("file %s: %w", fileID, apperr.ErrInvalidReference)
		}
	}

	m.TaggedUserIDs = lo.Uniq(m.TaggedUserIDs)
	for _, userID := range m.TaggedUserIDs {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO message_tags (message_id, user_id)
             SELECT $1, id FROM users WHERE id = $2`, m.ID, userID)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("tagged user %s: %w", userID, apperr.ErrInvalidReference)
		}
	}

	return m, tx.Commit()
}

func (r *MessageRepository) GetMessage(ctx context.Context, channelID, id uuid.UUID) (*Message, error) {
	m := &Message{}
	query := `SELECT id, channel_id, created_by, body, edited, reply_to, created_at, updated_at
        FROM messages WHERE id = $1 AND channel_id = $2`
	err := r.db.QueryRowContext(ctx, query, id, channelID).
		Scan(&m.ID, &m.ChannelID, &m.CreatedBy, &m.Body, &m.Edited, &m.ReplyTo, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	if err := r.loadLinks(ctx, []*Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) GetMessageByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	m := &Message{}
	query := `SELECT id, channel_id, created_by, body, edited, reply_to, created_at, updated_at
        FROM messages WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&m.ID, &m.ChannelID, &m.CreatedBy, &m.Body, &m.Edited, &m.ReplyTo, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	if err := r.loadLinks(ctx, []*Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateMessageBody replaces the body and forces the edited flag. Nothing
// else about a message can change after creation.
func (r *MessageRepository) UpdateMessageBody(ctx context.Context, id uuid.UUID, body string) (*Message, error) {
	m := &Message{}
	query := `UPDATE messages
        SET body = $2, edited = TRUE, updated_at = now()
        WHERE id = $1
        RETURNING id, channel_id, created_by, body, edited, reply_to, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, id, body).
		Scan(&m.ID, &m.ChannelID, &m.CreatedBy, &m.Body, &m.Edited, &m.ReplyTo, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	if err := r.loadLinks(ctx, []*Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMessage removes the message and everything hanging off it: its
// reactions, attachment links and tag links, and detaches any replies that
// pointed at it. One transaction, explicit cascade.
func (r *MessageRepository) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	steps := []string{
		`DELETE FROM reactions WHERE message_id = $1`,
		`DELETE FROM message_files WHERE message_id = $1`,
		`DELETE FROM message_tags WHERE message_id = $1`,
		`UPDATE messages SET reply_to = NULL WHERE reply_to = $1`,
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step, id); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}

	return tx.Commit()
}

// ListByChannel returns the channel's messages newest first, one snapshot
// read, capped at limit.
func (r *MessageRepository) ListByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]Message, error) {
	query := `SELECT id, channel_id, created_by, body, edited, reply_to, created_at, updated_at
        FROM messages
        WHERE channel_id = $1
        ORDER BY created_at DESC
        LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m := &Message{}
		err := rows.Scan(&m.ID, &m.ChannelID, &m.CreatedBy, &m.Body, &m.Edited,
			&m.ReplyTo, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadLinks(ctx, messages); err != nil {
		return nil, err
	}
	return lo.Map(messages, func(m *Message, _ int) Message { return *m }), nil
}

// loadLinks fills FileIDs and TaggedUserIDs for the given messages in two
// batch queries.
func (r *MessageRepository) loadLinks(ctx context.Context, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}
	byID := lo.KeyBy(messages, func(m *Message) uuid.UUID { return m.ID })
	ids := lo.Keys(byID)

	rows, err := r.db.QueryContext(ctx,
		`SELECT message_id, file_id FROM message_files WHERE message_id = ANY($1::uuid[])`,
		uuidArray(ids))
	if err != nil {
		return err
	}
	for rows.Next() {
		var messageID, fileID uuid.UUID
		if err := rows.Scan(&messageID, &fileID); err != nil {
			rows.Close()
			return err
		}
		byID[messageID].FileIDs = append(byID[messageID].FileIDs, fileID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.QueryContext(ctx,
		`SELECT message_id, user_id FROM message_tags WHERE message_id = ANY($1::uuid[])`,
		uuidArray(ids))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var messageID, userID uuid.UUID
		if err := rows.Scan(&messageID, &userID); err != nil {
			return err
		}
		byID[messageID].TaggedUserIDs = append(byID[messageID].TaggedUserIDs, userID)
	}
	return rows.Err()
}

// ListChannelFiles returns every file attached to a message of the channel,
// newest first.
func (r *MessageRepository) ListChannelFiles(ctx context.Context, channelID uuid.UUID) ([]File, error) {
	query := `SELECT DISTINCT f.id, f.created_by, f.type, f.locator, f.created_at, f.updated_at
        FROM files f
        JOIN message_files mf ON mf.file_id = f.id
        JOIN messages m ON m.id = mf.message_id
        WHERE m.channel_id = $1
        ORDER BY f.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.CreatedBy, &f.Type, &f.Locator, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *MessageRepository) CreateReaction(ctx context.Context, re *Reaction) (*Reaction, error) {
	re.ID = uuid.New()
	query := `INSERT INTO reactions (id, message_id, created_by, emoji)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, re.ID, re.MessageID, re.CreatedBy, re.Emoji).
		Scan(&re.CreatedAt, &re.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return re, nil
}

func (r *MessageRepository) GetReaction(ctx context.Context, channelID, id uuid.UUID) (*Reaction, error) {
	re := &Reaction{}
	query := `SELECT r.id, r.message_id, r.created_by, r.emoji, r.created_at, r.updated_at
        FROM reactions r
        JOIN messages m ON m.id = r.message_id
        WHERE r.id = $1 AND m.channel_id = $2`
	err := r.db.QueryRowContext(ctx, query, id, channelID).
		Scan(&re.ID, &re.MessageID, &re.CreatedBy, &re.Emoji, &re.CreatedAt, &re.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reaction %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return re, nil
}

// UpdateReactionEmoji changes the emoji. The message reference is fixed for
// the reaction's lifetime.
func (r *MessageRepository) UpdateReactionEmoji(ctx context.Context, id uuid.UUID, emoji string) (*Reaction, error) {
	re := &Reaction{}
	query := `UPDATE reactions SET emoji = $2, updated_at = now()
        WHERE id = $1
        RETURNING id, message_id, created_by, emoji, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, id, emoji).
		Scan(&re.ID, &re.MessageID, &re.CreatedBy, &re.Emoji, &re.CreatedAt, &re.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reaction %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return re, nil
}

func (r *MessageRepository) DeleteReaction(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reaction %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *MessageRepository) ListReactions(ctx context.Context, messageID uuid.UUID) ([]Reaction, error) {
	query := `SELECT id, message_id, created_by, emoji, created_at, updated_at
        FROM reactions WHERE message_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reactions []Reaction
	for rows.Next() {
		var re Reaction
		err := rows.Scan(&re.ID, &re.MessageID, &re.CreatedBy, &re.Emoji, &re.CreatedAt, &re.UpdatedAt)
		if err != nil {
			return nil, err
		}
		reactions = append(reactions, re)
	}
	return reactions, rows.Err()
}
