package picture

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedExtension is returned when a content type does not map to jpg, png or gif.
var ErrUnsupportedExtension = errors.New("unsupported extension")

var acceptedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

var acceptedExts = map[string]bool{
	"jpg": true,
	"png": true,
	"gif": true,
}

var nameReplacer = strings.NewReplacer(" ", "-", "_", "-")

// CanonicalizeName lower-cases raw and replaces spaces and underscores with hyphens.
func CanonicalizeName(raw string) string {
	return nameReplacer.Replace(strings.ToLower(raw))
}

// NameFromFilename drops the last dot-delimited segment of filename, joins the
// remaining segments and canonicalizes the result.
func NameFromFilename(filename string) string {
	parts := strings.Split(filename, ".")
	if len(parts) > 1 {
		parts = parts[:len(parts)-1]
	}
	return CanonicalizeName(strings.Join(parts, ""))
}

// CanonicalizeExt maps a declared content type such as image/jpeg to jpg, png or gif.
func CanonicalizeExt(mimeType string) (string, error) {
	_, subtype, found := strings.Cut(mimeType, "/")
	if !found {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExtension, mimeType)
	}
	ext := strings.ToLower(subtype)
	if ext == "jpeg" {
		ext = "jpg"
	}
	if !IsAcceptedExt(ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExtension, mimeType)
	}
	return ext, nil
}

// IsAcceptedType reports whether mimeType is one of image/jpeg, image/png or image/gif.
func IsAcceptedType(mimeType string) bool {
	return acceptedTypes[mimeType]
}

// IsAcceptedExt reports whether ext is one of jpg, png or gif.
func IsAcceptedExt(ext string) bool {
	return acceptedExts[ext]
}

// SplitFilename splits "name.ext" on its last dot. ok is false when there is no
// dot or the extension is not one of jpg, png or gif.
func SplitFilename(filename string) (name, ext string, ok bool) {
	i := strings.LastIndex(filename, ".")
	if i <= 0 {
		return "", "", false
	}
	name, ext = filename[:i], filename[i+1:]
	if !IsAcceptedExt(ext) {
		return "", "", false
	}
	return name, ext, true
}
