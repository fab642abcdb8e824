package content

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/brahman47/breakyourbelljar/domain"
)

const imageCDN = "https://cdn.sanity.io"

type ImageOptions struct {
	Width  int
	Height int
	// Fit is one of clip, crop, fill, fillmax, max, scale, min.
	Fit string
}

// ImageBuilder turns image asset references into CDN URLs.
type ImageBuilder struct {
	ProjectID string
	Dataset   string
	BaseURL   string
}

func (c *Client) Images() ImageBuilder {
	return ImageBuilder{ProjectID: c.cfg.ProjectID, Dataset: c.cfg.Dataset}
}

// ParseAssetRef splits "image-<id>-<w>x<h>-<ext>" into id, dimensions and extension.
func ParseAssetRef(ref string) (id, dims, ext string, err error) {
	rest, ok := strings.CutPrefix(ref, "image-")
	if !ok {
		return "", "", "", fmt.Errorf("not an image asset ref: %q", ref)
	}
	i := strings.LastIndex(rest, "-")
	if i <= 0 {
		return "", "", "", fmt.Errorf("malformed image asset ref: %q", ref)
	}
	rest, ext = rest[:i], rest[i+1:]
	i = strings.LastIndex(rest, "-")
	if i <= 0 {
		return "", "", "", fmt.Errorf("malformed image asset ref: %q", ref)
	}
	id, dims = rest[:i], rest[i+1:]
	w, h, ok := strings.Cut(dims, "x")
	if !ok || !isDigits(w) || !isDigits(h) || ext == "" {
		return "", "", "", fmt.Errorf("malformed image asset ref: %q", ref)
	}
	return id, dims, ext, nil
}

// URL builds a sized URL for img. It falls back to the dereferenced asset URL
// when the reference cannot be parsed and returns "" when there is neither.
func (b ImageBuilder) URL(img *domain.Image, opts ImageOptions) string {
	if img == nil || img.Asset == nil {
		return ""
	}
	base := ""
	if id, dims, ext, err := ParseAssetRef(img.AssetID()); err == nil {
		cdn := b.BaseURL
		if cdn == "" {
			cdn = imageCDN
		}
		base = fmt.Sprintf("%s/images/%s/%s/%s-%s.%s", cdn, b.ProjectID, b.Dataset, id, dims, ext)
	} else if img.Asset.URL != "" {
		base = img.Asset.URL
	} else {
		return ""
	}

	q := url.Values{}
	if opts.Width > 0 {
		q.Set("w", strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		q.Set("h", strconv.Itoa(opts.Height))
	}
	if opts.Fit != "" {
		q.Set("fit", opts.Fit)
	}
	if len(q) == 0 {
		return base
	}
	q.Set("auto", "format")
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
