package picture

import (
	"net/url"
	"time"
)

// View is the public JSON representation of a picture.
type View struct {
	Name       string `json:"name"`
	Caption    string `json:"caption"`
	UpdatedAt  string `json:"updated_at"`
	DefaultURL string `json:"default_url"`
	ThumbURL   string `json:"thumb_url"`
	SourceURL  string `json:"source_url"`
}

// PublicView serializes the picture. URLs are always derived from the current name and ext
// and are path-escaped.
func (p *Picture) PublicView() View {
	filename := url.PathEscape(p.Filename())
	return View{
		Name:       p.Name,
		Caption:    p.Caption,
		UpdatedAt:  p.UpdatedAt.UTC().Format(time.RFC3339),
		DefaultURL: "/picture/" + filename,
		ThumbURL:   "/picture/" + VariantThumb + "/" + filename,
		SourceURL:  "/picture/" + VariantSource + "/" + filename,
	}
}
