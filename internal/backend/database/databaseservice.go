package database

import (
	"context"
	"errors"

	"github.com/jo-hoe/gopicture/internal/picture"
)

var (
	// ErrNotFound indicates no picture is stored under the requested key.
	ErrNotFound = errors.New("picture not found")
	// ErrExists indicates a picture is already stored under the key being created.
	ErrExists = errors.New("picture already exists")
)

// DatabaseService stores pictures keyed by (name, ext). Each write stores the
// whole record at once so a picture never lacks one of its variants.
type DatabaseService interface {
	CreateDatabase() error
	DoesDatabaseExist() bool
	Close() error

	// CreatePicture inserts p only if nothing is stored at its key, otherwise it returns ErrExists.
	CreatePicture(ctx context.Context, p *picture.Picture) error
	// ReplacePicture overwrites the record at p's key, returning ErrNotFound if there is none.
	ReplacePicture(ctx context.Context, p *picture.Picture) error
	GetPicture(ctx context.Context, name, ext string) (*picture.Picture, error)
	// GetPictureByName returns the most recently updated picture with the given name, any extension.
	GetPictureByName(ctx context.Context, name string) (*picture.Picture, error)
	GetPictures(ctx context.Context) ([]*picture.Picture, error)
	DeletePicture(ctx context.Context, name, ext string) error
}
