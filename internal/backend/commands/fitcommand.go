package commands

import (
	"fmt"
	"log/slog"

	"github.com/disintegration/imaging"
)

// FitParams represents typed parameters for fit command
type FitParams struct {
	Height int
	Width  int
}

// NewFitParamsFromMap creates FitParams from a generic map
func NewFitParamsFromMap(params map[string]any) (*FitParams, error) {
	if err := ValidateRequiredParams(params, []string{"height", "width"}); err != nil {
		return nil, err
	}

	height := GetIntParam(params, "height", 0)
	width := GetIntParam(params, "width", 0)
	if err := requirePositive("height", height); err != nil {
		return nil, err
	}
	if err := requirePositive("width", width); err != nil {
		return nil, err
	}

	return &FitParams{
		Height: height,
		Width:  width,
	}, nil
}

// FitCommand shrinks an image so it fits inside a bounding box, preserving
// aspect ratio. Images already inside the box are re-encoded unchanged in size.
type FitCommand struct {
	name   string
	params *FitParams
}

// NewFitCommand creates a new fit command from configuration parameters
func NewFitCommand(params map[string]any) (Command, error) {
	typedParams, err := NewFitParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &FitCommand{
		name:   "FitCommand",
		params: typedParams,
	}, nil
}

// NewFitCommandWithParams creates a new fit command from concrete typed parameters
func NewFitCommandWithParams(width, height int) (*FitCommand, error) {
	if err := requirePositive("height", height); err != nil {
		return nil, err
	}
	if err := requirePositive("width", width); err != nil {
		return nil, err
	}

	return &FitCommand{
		name: "FitCommand",
		params: &FitParams{
			Height: height,
			Width:  width,
		},
	}, nil
}

// Name returns the command name
func (c *FitCommand) Name() string {
	return c.name
}

// Execute fits the image into the configured bounding box
func (c *FitCommand) Execute(imageData []byte) ([]byte, error) {
	img, format, err := decodeImage(imageData)
	if err != nil {
		slog.Error("FitCommand: failed to decode image", "error", err)
		return nil, err
	}

	bounds := img.Bounds()
	slog.Debug("FitCommand: image decoded",
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"target_width", c.params.Width,
		"target_height", c.params.Height)

	fitted := imaging.Fit(img, c.params.Width, c.params.Height, imaging.Lanczos)

	out, err := encodeImage(fitted, format)
	if err != nil {
		slog.Error("FitCommand: failed to encode fitted image", "error", err)
		return nil, fmt.Errorf("failed to encode fitted image: %w", err)
	}
	return out, nil
}

// GetParams returns the typed parameters
func (c *FitCommand) GetParams() *FitParams {
	return c.params
}

func init() {
	// Register the command in the default registry
	if err := DefaultRegistry.Register("FitCommand", NewFitCommand); err != nil {
		panic(fmt.Sprintf("failed to register FitCommand: %v", err))
	}
}
