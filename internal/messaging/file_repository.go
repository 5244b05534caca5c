package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bigkid-dev/Bmovez/internal/apperr"
)

type IFileRepository interface {
	CreateFile(ctx context.Context, f *File) (*File, error)
	GetFile(ctx context.Context, id uuid.UUID) (*File, error)
	GetFiles(ctx context.Context, ids []uuid.UUID) ([]File, error)
}

type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) CreateFile(ctx context.Context, f *File) (*File, error) {
	f.ID = uuid.New()
	query := `INSERT INTO files (id, created_by, type, locator)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, f.ID, f.CreatedBy, f.Type, f.Locator).
		Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *FileRepository) GetFile(ctx context.Context, id uuid.UUID) (*File, error) {
	f := &File{}
	query := `SELECT id, created_by, type, locator, created_at, updated_at
        FROM files WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&f.ID, &f.CreatedBy, &f.Type, &f.Locator, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("file %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

func (r *FileRepository) GetFiles(ctx context.Context, ids []uuid.UUID) ([]File, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT id, created_by, type, locator, created_at, updated_at
        FROM files WHERE id = ANY($1::uuid[])`
	rows, err := r.db.QueryContext(ctx, query, uuidArray(ids))
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
