package picture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/jo-hoe/gopicture/internal/backend/commands"
)

// Variant names accepted in /picture/{variant}/{name}.{ext}
const (
	VariantDefault = "default"
	VariantThumb   = "thumb"
	VariantSource  = "source"
)

// ErrTransform is returned when a variant cannot be derived from the uploaded bytes.
var ErrTransform = errors.New("image transform failed")

// DefaultMaxPixels bounds width*height of an accepted upload.
const DefaultMaxPixels int64 = 40_000_000

var (
	// ThumbCommand fits thumbnails into 120x90.
	ThumbCommand = commands.CommandConfig{
		Name:   "FitCommand",
		Params: map[string]any{"width": 120, "height": 90},
	}
	// DefaultCommand caps the default variant at 360 pixels wide.
	DefaultCommand = commands.CommandConfig{
		Name:   "ScaleCommand",
		Params: map[string]any{"maxWidth": 360},
	}
)

// Upload is a single uploaded file as received from the client.
type Upload struct {
	Filename string
	MimeType string
	Data     []byte
}

// Picture is a stored picture with its derived variants.
type Picture struct {
	Name      string
	Ext       string
	MimeType  string
	Source    []byte
	Thumb     []byte
	Default   []byte
	Caption   string
	UpdatedAt time.Time
}

// Filename recombines name and extension.
func (p *Picture) Filename() string {
	return p.Name + "." + p.Ext
}

// Variant returns the bytes of the named variant. An empty name selects the default variant.
func (p *Picture) Variant(variant string) ([]byte, bool) {
	switch variant {
	case "", VariantDefault:
		return p.Default, true
	case VariantThumb:
		return p.Thumb, true
	case VariantSource:
		return p.Source, true
	}
	return nil, false
}

// Encoder builds pictures from uploads. It is safe for concurrent use.
type Encoder struct {
	thumb       commands.Command
	defaultSize commands.Command
	maxPixels   int64
}

// NewEncoder creates the thumb and default commands from registry.
// Uploads larger than maxPixels are rejected; zero or less means DefaultMaxPixels.
func NewEncoder(registry *commands.CommandRegistry, maxPixels int64) (*Encoder, error) {
	thumb, err := registry.CreateFromConfig(ThumbCommand)
	if err != nil {
		return nil, fmt.Errorf("failed to create thumb command: %w", err)
	}
	defaultSize, err := registry.CreateFromConfig(DefaultCommand)
	if err != nil {
		return nil, fmt.Errorf("failed to create default command: %w", err)
	}
	encoder := NewEncoderWithCommands(thumb, defaultSize)
	if maxPixels > 0 {
		encoder.maxPixels = maxPixels
	}
	return encoder, nil
}

// NewEncoderWithCommands creates an encoder from explicit commands.
func NewEncoderWithCommands(thumb, defaultSize commands.Command) *Encoder {
	return &Encoder{
		thumb:       thumb,
		defaultSize: defaultSize,
		maxPixels:   DefaultMaxPixels,
	}
}

// checkDimensions reads only the image header, so oversized images are refused
// before any pixel buffer is allocated.
func (e *Encoder) checkDimensions(source []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(source))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransform, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > e.maxPixels {
		return fmt.Errorf("%w: %dx%d image exceeds %d pixels", ErrTransform, cfg.Width, cfg.Height, e.maxPixels)
	}
	return nil
}

// DeriveVariants produces the thumb and default variants of source.
func (e *Encoder) DeriveVariants(source []byte) (thumb []byte, defaultImage []byte, err error) {
	variants, err := commands.ExecuteAll(source, e.thumb, e.defaultSize)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransform, err)
	}
	return variants[0], variants[1], nil
}

// Encode builds a complete picture from upload. An empty name is derived from the
// upload's filename, an empty ext from its content type. No picture is returned
// unless every variant could be derived.
func (e *Encoder) Encode(upload *Upload, name, ext, caption string, now time.Time) (*Picture, error) {
	if name == "" {
		name = NameFromFilename(upload.Filename)
	} else {
		name = CanonicalizeName(name)
	}
	if ext == "" {
		var err error
		ext, err = CanonicalizeExt(upload.MimeType)
		if err != nil {
			return nil, err
		}
	}

	if err := e.checkDimensions(upload.Data); err != nil {
		return nil, err
	}
	thumb, defaultImage, err := e.DeriveVariants(upload.Data)
	if err != nil {
		return nil, err
	}

	return &Picture{
		Name:      name,
		Ext:       ext,
		MimeType:  upload.MimeType,
		Source:    upload.Data,
		Thumb:     thumb,
		Default:   defaultImage,
		Caption:   caption,
		UpdatedAt: now.UTC(),
	}, nil
}
