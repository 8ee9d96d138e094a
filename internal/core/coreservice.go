package core

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator"
	"github.com/jo-hoe/gopicture/internal/backend/commands"
	"github.com/jo-hoe/gopicture/internal/backend/database"
	"github.com/jo-hoe/gopicture/internal/picture"
)

// PictureRequest carries the parameters of a create or replace call.
// Name and Ext come from the resource path and are empty for collection uploads.
type PictureRequest struct {
	APIKey  string
	Name    string
	Ext     string
	Caption string `validate:"max=1024"`
	Upload  *picture.Upload
}

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	encoder         *picture.Encoder
	validate        *validator.Validate
	locks           *keyedMutex
	now             func() time.Time
}

func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	databaseService, err := getDatabaseService(config)
	if err != nil {
		return nil, err
	}
	service, err := NewCoreServiceWithDatabase(config, databaseService)
	if err != nil {
		_ = databaseService.Close()
		return nil, err
	}
	return service, nil
}

// NewCoreServiceWithDatabase creates a core service on top of an existing database service
func NewCoreServiceWithDatabase(config *ServiceConfig, databaseService database.DatabaseService) (*CoreService, error) {
	encoder, err := picture.NewEncoder(commands.DefaultRegistry, config.MaxUploadPixels)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize picture encoder: %w", err)
	}
	return &CoreService{
		config:          config,
		databaseService: databaseService,
		encoder:         encoder,
		validate:        validator.New(),
		locks:           newKeyedMutex(),
		now:             time.Now,
	}, nil
}

// IsReady reports whether the database service can currently be reached
func (service *CoreService) IsReady() bool {
	return service.databaseService.DoesDatabaseExist()
}

func (service *CoreService) Close() error {
	return service.databaseService.Close()
}

// GetPicture looks a picture up by its exact name and extension
func (service *CoreService) GetPicture(ctx context.Context, name, ext string) (*picture.Picture, error) {
	if !picture.IsAcceptedExt(ext) {
		return nil, errNotFound()
	}
	p, err := service.databaseService.GetPicture(ctx, picture.CanonicalizeName(name), ext)
	if err != nil {
		return nil, service.lookupError("GetPicture", err)
	}
	return p, nil
}

// GetPictureMeta looks a picture up by name only, whatever its extension
func (service *CoreService) GetPictureMeta(ctx context.Context, name string) (*picture.Picture, error) {
	p, err := service.databaseService.GetPictureByName(ctx, picture.CanonicalizeName(name))
	if err != nil {
		return nil, service.lookupError("GetPictureMeta", err)
	}
	return p, nil
}

func (service *CoreService) ListPictures(ctx context.Context) ([]*picture.Picture, error) {
	pictures, err := service.databaseService.GetPictures(ctx)
	if err != nil {
		slog.Error("ListPictures: failed to list pictures", "error", err)
		return nil, errStoreRead(err)
	}
	return pictures, nil
}

// CreatePicture stores a new picture. It never overwrites an existing one.
func (service *CoreService) CreatePicture(ctx context.Context, request *PictureRequest) (p *picture.Picture, err error) {
	defer func() { recordOperation("create", err) }()

	if err := service.checkUpload(request); err != nil {
		return nil, err
	}
	name, ext, err := service.resolveKey(request)
	if err != nil {
		return nil, err
	}

	unlock := service.locks.Lock(name + "." + ext)
	defer unlock()

	if _, err := service.databaseService.GetPicture(ctx, name, ext); err == nil {
		return nil, errExists()
	} else if !errors.Is(err, database.ErrNotFound) {
		slog.Error("CreatePicture: failed to check for existing picture", "name", name, "ext", ext, "error", err)
		return nil, errStorage(err)
	}

	p, err = service.encode(request, name, ext)
	if err != nil {
		return nil, err
	}

	if err := service.databaseService.CreatePicture(ctx, p); err != nil {
		if errors.Is(err, database.ErrExists) {
			return nil, errExists()
		}
		slog.Error("CreatePicture: failed to store picture", "resource", p.Filename(), "error", err)
		return nil, errStorage(err)
	}

	slog.Info("CreatePicture: picture created", "resource", p.Filename(), "size_bytes", len(p.Source))
	return p, nil
}

// ReplacePicture replaces every field of an existing picture. It never creates one.
func (service *CoreService) ReplacePicture(ctx context.Context, request *PictureRequest) (p *picture.Picture, err error) {
	defer func() { recordOperation("replace", err) }()

	if err := service.checkUpload(request); err != nil {
		return nil, err
	}
	name, ext, err := service.resolveKey(request)
	if err != nil {
		return nil, err
	}

	unlock := service.locks.Lock(name + "." + ext)
	defer unlock()

	if _, err := service.databaseService.GetPicture(ctx, name, ext); errors.Is(err, database.ErrNotFound) {
		return nil, errNothingToReplace()
	} else if err != nil {
		slog.Error("ReplacePicture: failed to load existing picture", "name", name, "ext", ext, "error", err)
		return nil, errStorage(err)
	}

	p, err = service.encode(request, name, ext)
	if err != nil {
		return nil, err
	}

	if err := service.databaseService.ReplacePicture(ctx, p); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, errNothingToReplace()
		}
		slog.Error("ReplacePicture: failed to store picture", "resource", p.Filename(), "error", err)
		return nil, errStorage(err)
	}

	slog.Info("ReplacePicture: picture updated", "resource", p.Filename(), "size_bytes", len(p.Source))
	return p, nil
}

// DeletePicture removes a picture and returns its filename
func (service *CoreService) DeletePicture(ctx context.Context, apiKey, name, ext string) (filename string, err error) {
	defer func() { recordOperation("delete", err) }()

	if !service.checkAPIKey(apiKey) {
		return "", errUnauthorized()
	}
	if !picture.IsAcceptedExt(ext) {
		return "", errNotFound()
	}
	name = picture.CanonicalizeName(name)
	filename = name + "." + ext

	unlock := service.locks.Lock(filename)
	defer unlock()

	if err := service.databaseService.DeletePicture(ctx, name, ext); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", errNotFound()
		}
		slog.Error("DeletePicture: failed to delete picture", "resource", filename, "error", err)
		return "", errStorage(err)
	}

	slog.Info("DeletePicture: picture deleted", "resource", filename)
	return filename, nil
}

func (service *CoreService) checkAPIKey(apiKey string) bool {
	return subtle.ConstantTimeCompare([]byte(apiKey), []byte(service.config.APIKey)) == 1
}

// checkUpload applies the checks shared by create and replace, in response order
func (service *CoreService) checkUpload(request *PictureRequest) error {
	if !service.checkAPIKey(request.APIKey) {
		return errUnauthorized()
	}
	if request.Upload == nil || len(request.Upload.Data) == 0 {
		return errNoUpload()
	}
	if !picture.IsAcceptedType(request.Upload.MimeType) {
		return errInvalid(MessageInvalid, nil)
	}
	if err := service.validate.Struct(request); err != nil {
		return errInvalid(MessageInvalidCaption, err)
	}
	return nil
}

// resolveKey returns the canonical (name, ext) a request writes to
func (service *CoreService) resolveKey(request *PictureRequest) (string, string, error) {
	if request.Name == "" {
		ext, err := picture.CanonicalizeExt(request.Upload.MimeType)
		if err != nil {
			return "", "", errInvalid(MessageInvalid, err)
		}
		name := picture.NameFromFilename(request.Upload.Filename)
		if name == "" {
			return "", "", errNoUpload()
		}
		return name, ext, nil
	}
	if !picture.IsAcceptedExt(request.Ext) {
		return "", "", errInvalid(MessageInvalid, nil)
	}
	return picture.CanonicalizeName(request.Name), request.Ext, nil
}

func (service *CoreService) encode(request *PictureRequest, name, ext string) (*picture.Picture, error) {
	p, err := service.encoder.Encode(request.Upload, name, ext, request.Caption, service.now())
	if err != nil {
		slog.Warn("encode: failed to derive picture variants", "name", name, "ext", ext, "error", err)
		if errors.Is(err, picture.ErrUnsupportedExtension) {
			return nil, errInvalid(MessageInvalid, err)
		}
		return nil, errTransform(err)
	}
	return p, nil
}

func (service *CoreService) lookupError(operation string, err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return errNotFound()
	}
	slog.Error(operation+": failed to load picture", "error", err)
	return errStoreRead(err)
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}
