package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"

	"github.com/bigkid-dev/Bmovez/internal/apperr"
)

const uniqueViolation = "23505"

// ChannelPatch carries the mutable GROUP channel attributes. Nil fields are
// left untouched.
type ChannelPatch struct {
	Title       *string
	Description *string
	Icon        *string
}

type IChannelRepository interface {
	CreateGroup(ctx context.Context, title string, description, icon *string, creator uuid.UUID) (*Channel, error)
	ResolveOrCreateDirect(ctx context.Context, actor, other uuid.UUID) (*Channel, error)
	GetChannel(ctx context.Context, id uuid.UUID) (*Channel, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Channel, error)
	UpdateChannel(ctx context.Context, id uuid.UUID, patch ChannelPatch) (*Channel, error)
	DeleteChannel(ctx context.Context, id uuid.UUID) error
	Members(ctx context.Context, channelID uuid.UUID) ([]Member, error)
	GetMembership(ctx context.Context, channelID, userID uuid.UUID) (*Membership, error)
	AddMembers(ctx context.Context, channelID uuid.UUID, userIDs []uuid.UUID, addedBy uuid.UUID) ([]Membership, error)
	RemoveMembers(ctx context.Context, channelID uuid.UUID, userIDs []uuid.UUID) error
	UserSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]UserSummary, error)
}

type ChannelRepository struct {
	db *sql.DB
}

func NewChannelRepository(db *sql.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

const channelColumns = `id, kind, title, description, icon, created_by, is_active, created_at, updated_at`

func scanChannel(row interface{ Scan(...any) error }) (*Channel, error) {
	ch := &Channel{}
	err := row.Scan(&ch.ID, &ch.Kind, &ch.Title, &ch.Description, &ch.Icon,
		&ch.CreatedBy, &ch.IsActive, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// CreateGroup creates a GROUP channel together with the founding admin
// membership. Both commit or neither does.
func (r *ChannelRepository) CreateGroup(ctx context.Context, title string, description, icon *string, creator uuid.UUID) (*Channel, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `INSERT INTO channels (id, kind, title, description, icon, created_by)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING ` + channelColumns
	ch, err := scanChannel(tx.QueryRowContext(ctx, query,
		uuid.New(), ChannelGroup, title, description, icon, creator))
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO channel_members (id, channel_id, user_id, added_by, is_admin)
         VALUES ($1, $2, $3, $4, TRUE)`,
		uuid.New(), ch.ID, creator, creator)
	if err != nil {
		return nil, err
	}

	return ch, tx.Commit()
}

// ResolveOrCreateDirect returns the canonical DIRECT channel for the
// unordered pair {actor, other}, creating it on first use. A
// transaction-scoped advisory lock on the sorted pair serializes concurrent
// first-time resolutions, so the re-check inside the lock can never race
// another creator for the same pair.
func (r *ChannelRepository) ResolveOrCreateDirect(ctx context.Context, actor, other uuid.UUID) (*Channel, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	lockKey := directPairKey(actor, other)
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return nil, err
	}

	memberCount := 2
	if actor == other {
		memberCount = 1
	}

	query := `SELECT ` + channelColumns + ` FROM channels c
        WHERE c.kind = 'DIRECT'
          AND EXISTS (SELECT 1 FROM channel_members WHERE channel_id = c.id AND user_id = $1)
          AND EXISTS (SELECT 1 FROM channel_members WHERE channel_id = c.id AND user_id = $2)
          AND (SELECT COUNT(*) FROM channel_members WHERE channel_id = c.id) = $3
        LIMIT 1`
	ch, err := scanChannel(tx.QueryRowContext(ctx, query, actor, other, memberCount))
	if err == nil {
		return ch, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	insert := `INSERT INTO channels (id, kind, created_by) VALUES ($1, 'DIRECT', $2)
        RETURNING ` + channelColumns
	ch, err = scanChannel(tx.QueryRowContext(ctx, insert, uuid.New(), actor))
	if err != nil {
		return nil, err
	}

	memberInsert := `INSERT INTO channel_members (id, channel_id, user_id, added_by, is_admin)
        VALUES ($1, $2, $3, $4, TRUE)`
	if _, err := tx.ExecContext(ctx, memberInsert, uuid.New(), ch.ID, other, actor); err != nil {
		return nil, err
	}
	// a self DM holds a single membership row
	if actor != other {
		if _, err := tx.ExecContext(ctx, memberInsert, uuid.New(), ch.ID, actor, actor); err != nil {
			return nil, err
		}
	}

	return ch, tx.Commit()
}

func directPairKey(a, b uuid.UUID) string {
	lo, hi := a.String(), b.String()
	if hi < lo {
		lo, hi = hi, lo
	}
	return "dm:" + lo + ":" + hi
}

func (r *ChannelRepository) GetChannel(ctx context.Context, id uuid.UUID) (*Channel, error) {
	ch, err := scanChannel(r.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("channel %s: %w", id, apperr.ErrNotFound)
	}
	return ch, err
}

func (r *ChannelRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]Channel, error) {
	query := `SELECT c.id, c.kind, c.title, c.description, c.icon,
            c.created_by, c.is_active, c.created_at, c.updated_at
        FROM channels c
        JOIN channel_members m ON m.channel_id = c.id
        WHERE m.user_id = $1
        ORDER BY c.updated_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

func (r *ChannelRepository) UpdateChannel(ctx context.Context, id uuid.UUID, patch ChannelPatch) (*Channel, error) {
	query := `UPDATE channels
        SET title = COALESCE($2, title),
            description = COALESCE($3, description),
            icon = COALESCE($4, icon),
            updated_at = now()
        WHERE id = $1
        RETURNING ` + channelColumns
	ch, err := scanChannel(r.db.QueryRowContext(ctx, query, id, patch.Title, patch.Description, patch.Icon))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("channel %s: %w", id, apperr.ErrNotFound)
	}
	return ch, err
}

// DeleteChannel removes the channel and everything it owns: reactions on its
// messages, attachment and tag links, the messages themselves, then the
// memberships. All inside one transaction.
func (r *ChannelRepository) DeleteChannel(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	steps := []string{
		`DELETE FROM reactions r USING messages m WHERE r.message_id = m.id AND m.channel_id = $1`,
		`DELETE FROM message_files mf USING messages m WHERE mf.message_id = m.id AND m.channel_id = $1`,
		`DELETE FROM message_tags mt USING messages m WHERE mt.message_id = m.id AND m.channel_id = $1`,
		`DELETE FROM messages WHERE channel_id = $1`,
		`DELETE FROM channel_members WHERE channel_id = $1`,
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step, id); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("channel %s: %w", id, apperr.ErrNotFound)
	}

	return tx.Commit()
}

func (r *ChannelRepository) Members(ctx context.Context, channelID uuid.UUID) ([]Member, error) {
	query := `SELECT m.id, m.channel_id, m.user_id, m.added_by, m.is_admin,
            m.created_at, m.updated_at, u.username, u.name, u.profile_picture
        FROM channel_members m
        JOIN users u ON u.id = m.user_id
        WHERE m.channel_id = $1
        ORDER BY m.created_at`
	rows, err := r.db.QueryContext(ctx, query, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		err := rows.Scan(&m.ID, &m.ChannelID, &m.UserID, &m.AddedBy, &m.IsAdmin,
			&m.CreatedAt, &m.UpdatedAt, &m.Username, &m.Name, &m.ProfilePicture)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *ChannelRepository) GetMembership(ctx context.Context, channelID, userID uuid.UUID) (*Membership, error) {
	m := &Membership{}
	query := `SELECT id, channel_id, user_id, added_by, is_admin, created_at, updated_at
        FROM channel_members WHERE channel_id = $1 AND user_id = $2`
	err := r.db.QueryRowContext(ctx, query, channelID, userID).
		Scan(&m.ID, &m.ChannelID, &m.UserID, &m.AddedBy, &m.IsAdmin, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership (%s, %s): %w", channelID, userID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return m, nil
}

// AddMembers inserts a membership for every requested user that is not
// already a member; users already present are skipped silently. The whole
// batch commits in one transaction.
func (r *ChannelRepository) AddMembers(ctx context.Context, channelID uuid.UUID, userIDs []uuid.UUID, addedBy uuid.UUID) ([]Membership, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT user_id FROM channel_members WHERE channel_id = $1`, channelID)
	if err != nil {
		return nil, err
	}
	existing := map[uuid.UUID]struct{}{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		existing[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	newIDs := lo.Filter(lo.Uniq(userIDs), func(id uuid.UUID, _ int) bool {
		_, present := existing[id]
		return !present
	})

	var created []Membership
	for _, userID := range newIDs {
		m := Membership{ID: uuid.New(), ChannelID: channelID, UserID: userID, AddedBy: &addedBy}
		query := `INSERT INTO channel_members (id, channel_id, user_id, added_by, is_admin)
            VALUES ($1, $2, $3, $4, FALSE)
            RETURNING created_at, updated_at`
		err := tx.QueryRowContext(ctx, query, m.ID, m.ChannelID, m.UserID, addedBy).
			Scan(&m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return nil, fmt.Errorf("membership (%s, %s): %w", channelID, userID, apperr.ErrConflict)
			}
			return nil, err
		}
		created = append(created, m)
	}

	return created, tx.Commit()
}

// RemoveMembers deletes the given (channel, user) pairs. Removing someone
// who is not a member is a no-op.
func (r *ChannelRepository) RemoveMembers(ctx context.Context, channelID uuid.UUID, userIDs []uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM channel_members WHERE channel_id = $1 AND user_id = ANY($2::uuid[])`,
		channelID, uuidArray(userIDs))
	return err
}

func (r *ChannelRepository) UserSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]UserSummary, error) {
	summaries := make(map[uuid.UUID]UserSummary, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, name, profile_picture FROM users WHERE id = ANY($1::uuid[])`,
		uuidArray(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &u.ProfilePicture); err != nil {
			return nil, err
		}
		summaries[u.ID] = u
	}
	return summaries, rows.Err()
}

func uuidArray(ids []uuid.UUID) []string {
	return lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() })
}
