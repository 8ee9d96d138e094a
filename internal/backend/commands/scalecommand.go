package commands

import (
	"fmt"
	"image"
	"log/slog"

	"golang.org/x/image/draw"
)

// ScaleParams represents typed parameters for scale command
type ScaleParams struct {
	MaxWidth int
}

// NewScaleParamsFromMap creates ScaleParams from a generic map
func NewScaleParamsFromMap(params map[string]any) (*ScaleParams, error) {
	if err := ValidateRequiredParams(params, []string{"maxWidth"}); err != nil {
		return nil, err
	}

	maxWidth := GetIntParam(params, "maxWidth", 0)
	if err := requirePositive("maxWidth", maxWidth); err != nil {
		return nil, err
	}

	return &ScaleParams{MaxWidth: maxWidth}, nil
}

// ScaleCommand caps the image width and scales the height proportionally
type ScaleCommand struct {
	name   string
	params *ScaleParams
}

// NewScaleCommand creates a new scale command from configuration parameters
func NewScaleCommand(params map[string]any) (Command, error) {
	typedParams, err := NewScaleParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &ScaleCommand{
		name:   "ScaleCommand",
		params: typedParams,
	}, nil
}

// NewScaleCommandWithParams creates a new scale command from concrete typed parameters
func NewScaleCommandWithParams(maxWidth int) (*ScaleCommand, error) {
	if err := requirePositive("maxWidth", maxWidth); err != nil {
		return nil, err
	}

	return &ScaleCommand{
		name:   "ScaleCommand",
		params: &ScaleParams{MaxWidth: maxWidth},
	}, nil
}

// Name returns the command name
func (c *ScaleCommand) Name() string {
	return c.name
}

// Execute scales the image down to the configured maximum width
func (c *ScaleCommand) Execute(imageData []byte) ([]byte, error) {
	slog.Debug("ScaleCommand: decoding image",
		"input_size_bytes", len(imageData))

	img, format, err := decodeImage(imageData)
	if err != nil {
		slog.Error("ScaleCommand: failed to decode image", "error", err)
		return nil, err
	}

	bounds := img.Bounds()
	originalWidth := bounds.Dx()
	originalHeight := bounds.Dy()

	// Never upscale
	if originalWidth <= c.params.MaxWidth {
		slog.Debug("ScaleCommand: image within max width; skipping scaling",
			"original_width", originalWidth,
			"max_width", c.params.MaxWidth)
		return imageData, nil
	}

	scaledWidth, scaledHeight := computeCappedDimensions(originalWidth, originalHeight, c.params.MaxWidth)
	slog.Debug("ScaleCommand: scaled dimensions calculated",
		"original_width", originalWidth,
		"original_height", originalHeight,
		"scaled_width", scaledWidth,
		"scaled_height", scaledHeight)

	dst := image.NewRGBA(image.Rect(0, 0, scaledWidth, scaledHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	out, err := encodeImage(dst, format)
	if err != nil {
		slog.Error("ScaleCommand: failed to encode scaled image", "error", err)
		return nil, fmt.Errorf("failed to encode scaled image: %w", err)
	}

	slog.Debug("ScaleCommand: scaling complete",
		"output_size_bytes", len(out))

	return out, nil
}

// GetMaxWidth returns the configured maximum width
func (c *ScaleCommand) GetMaxWidth() int {
	return c.params.MaxWidth
}

func computeCappedDimensions(originalWidth, originalHeight, maxWidth int) (int, int) {
	height := int(float64(originalHeight)*float64(maxWidth)/float64(originalWidth) + 0.5)
	if height < 1 {
		height = 1
	}
	return maxWidth, height
}

func init() {
	// Register the command in the default registry
	if err := DefaultRegistry.Register("ScaleCommand", NewScaleCommand); err != nil {
		panic(fmt.Sprintf("failed to register ScaleCommand: %v", err))
	}
}
