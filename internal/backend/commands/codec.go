package commands

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// ErrUnsupportedImage is returned when image data cannot be decoded.
var ErrUnsupportedImage = errors.New("unsupported image format")

const jpegQuality = 90

// decodeImage decodes image data and reports the format it was stored in.
func decodeImage(data []byte) (image.Image, imaging.Format, error) {
	img, formatName, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	format, err := imaging.FormatFromExtension(formatName)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return img, format, nil
}

// encodeImage encodes img in the given format; output keeps the source's format.
func encodeImage(img image.Image, format imaging.Format) ([]byte, error) {
	var buf bytes.Buffer
	bb := img.Bounds()
	buf.Grow(bb.Dx() * bb.Dy())
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
