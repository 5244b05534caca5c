package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

// AutoMigrate creates the schema if it does not exist yet.
//
// Foreign keys deliberately carry no ON DELETE CASCADE: dependent rows are
// removed explicitly by the owning repository inside the same transaction,
// so the cascade is a visible, testable operation.
func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            name VARCHAR(100) NOT NULL DEFAULT '',
            password VARCHAR(255) NOT NULL,
            profile_picture VARCHAR(300),
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE TABLE IF NOT EXISTS channels (
            id UUID PRIMARY KEY,
            kind VARCHAR(10) NOT NULL CHECK (kind IN ('DIRECT', 'GROUP')),
            title VARCHAR(100),
            description TEXT,
            icon VARCHAR(300),
            created_by UUID REFERENCES users(id),
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE TABLE IF NOT EXISTS channel_members (
            id UUID NOT NULL,
            channel_id UUID NOT NULL REFERENCES channels(id),
            user_id UUID NOT NULL REFERENCES users(id),
            added_by UUID REFERENCES users(id),
            is_admin BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (channel_id, user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS files (
            id UUID PRIMARY KEY,
            created_by UUID NOT NULL REFERENCES users(id),
            type VARCHAR(10) NOT NULL CHECK (type IN ('IMAGE', 'DOCUMENT')),
            locator VARCHAR(300) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            channel_id UUID NOT NULL REFERENCES channels(id),
            created_by UUID NOT NULL REFERENCES users(id),
            body TEXT NOT NULL,
            edited BOOLEAN NOT NULL DEFAULT FALSE,
            reply_to UUID REFERENCES messages(id),
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE TABLE IF NOT EXISTS message_files (
            message_id UUID NOT NULL REFERENCES messages(id),
            file_id UUID NOT NULL REFERENCES files(id),
            PRIMARY KEY (message_id, file_id)
        )`,

		`CREATE TABLE IF NOT EXISTS message_tags (
            message_id UUID NOT NULL REFERENCES messages(id),
            user_id UUID NOT NULL REFERENCES users(id),
            PRIMARY KEY (message_id, user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS reactions (
            id UUID PRIMARY KEY,
            message_id UUID NOT NULL REFERENCES messages(id),
            created_by UUID NOT NULL REFERENCES users(id),
            emoji VARCHAR(50) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE INDEX IF NOT EXISTS idx_messages_channel_created
            ON messages (channel_id, created_at DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_reactions_message
            ON reactions (message_id)`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
