package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jo-hoe/gopicture/internal/picture"
	_ "modernc.org/sqlite"
)

const pictureColumns = "name, ext, mime_type, source, thumb, default_image, caption, updated_at"

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS pictures (
		name TEXT NOT NULL,
		ext TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		source BLOB NOT NULL,
		thumb BLOB NOT NULL,
		default_image BLOB NOT NULL,
		caption TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (name, ext)
	)`)
	return err
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist() bool {
	// In SQLite, the database file is created when you connect to it.
	// So we can assume it exists if we can successfully ping the database.
	err := s.db.Ping()
	return err == nil
}

func (s *SQLiteDatabase) CreatePicture(ctx context.Context, p *picture.Picture) error {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO pictures ("+pictureColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (name, ext) DO NOTHING",
		p.Name, p.Ext, p.MimeType, p.Source, p.Thumb, p.Default, p.Caption, p.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert picture %s: %w", p.Filename(), err)
	}
	return expectOneRow(result, ErrExists)
}

func (s *SQLiteDatabase) ReplacePicture(ctx context.Context, p *picture.Picture) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE pictures SET mime_type = ?, source = ?, thumb = ?, default_image = ?, caption = ?, updated_at = ?
		WHERE name = ? AND ext = ?`,
		p.MimeType, p.Source, p.Thumb, p.Default, p.Caption, p.UpdatedAt.UnixNano(), p.Name, p.Ext)
	if err != nil {
		return fmt.Errorf("failed to replace picture %s: %w", p.Filename(), err)
	}
	return expectOneRow(result, ErrNotFound)
}

func (s *SQLiteDatabase) GetPicture(ctx context.Context, name, ext string) (*picture.Picture, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+pictureColumns+" FROM pictures WHERE name = ? AND ext = ?", name, ext)
	return scanPicture(row)
}

func (s *SQLiteDatabase) GetPictureByName(ctx context.Context, name string) (*picture.Picture, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+pictureColumns+" FROM pictures WHERE name = ? ORDER BY updated_at DESC LIMIT 1", name)
	return scanPicture(row)
}

func (s *SQLiteDatabase) GetPictures(ctx context.Context) ([]*picture.Picture, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+pictureColumns+" FROM pictures ORDER BY name, ext")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	pictures := make([]*picture.Picture, 0)
	for rows.Next() {
		p, err := scanPicture(rows)
		if err != nil {
			return nil, err
		}
		pictures = append(pictures, p)
	}
	return pictures, rows.Err()
}

func (s *SQLiteDatabase) DeletePicture(ctx context.Context, name, ext string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM pictures WHERE name = ? AND ext = ?", name, ext)
	if err != nil {
		return fmt.Errorf("failed to delete picture %s.%s: %w", name, ext, err)
	}
	return expectOneRow(result, ErrNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPicture(row rowScanner) (*picture.Picture, error) {
	var p picture.Picture
	var updatedAt int64
	err := row.Scan(&p.Name, &p.Ext, &p.MimeType, &p.Source, &p.Thumb, &p.Default, &p.Caption, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &p, nil
}

func expectOneRow(result sql.Result, noRowsErr error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return noRowsErr
	}
	return nil
}
