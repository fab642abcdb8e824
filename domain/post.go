package domain

import (
	"time"
)

type Slug struct {
	Current string `json:"current"`
}

type Asset struct {
	ID  string `json:"_id,omitempty"`
	Ref string `json:"_ref,omitempty"`
	URL string `json:"url,omitempty"`
}

type Image struct {
	Asset   *Asset `json:"asset,omitempty"`
	Alt     string `json:"alt,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// AssetID returns the asset document id, falling back to the unresolved reference.
func (i *Image) AssetID() string {
	if i == nil || i.Asset == nil {
		return ""
	}
	if i.Asset.ID != "" {
		return i.Asset.ID
	}
	return i.Asset.Ref
}

type Category struct {
	Title       string `json:"title"`
	Slug        *Slug  `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
}

type Post struct {
	ID          string     `json:"_id"`
	Title       string     `json:"title"`
	Slug        Slug       `json:"slug"`
	PublishedAt string     `json:"publishedAt,omitempty"`
	Featured    bool       `json:"featured,omitempty"`
	MainImage   *Image     `json:"mainImage,omitempty"`
	Gallery     []Image    `json:"gallery,omitempty"`
	Author      *Author    `json:"author,omitempty"`
	Categories  []Category `json:"categories,omitempty"`
	Body        []Block    `json:"body,omitempty"`
	Excerpt     string     `json:"excerpt,omitempty"`
}

func (p Post) Path() string {
	return "/blog/" + p.Slug.Current
}

func (p Post) PrimaryCategory() *Category {
	if len(p.Categories) == 0 {
		return nil
	}
	return &p.Categories[0]
}

// PublishedTime is the zero time when the post has no valid publication timestamp.
func (p Post) PublishedTime() time.Time {
	if p.PublishedAt == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, p.PublishedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DeriveExcerpt fills Excerpt from the body when the query did not project one.
func (p *Post) DeriveExcerpt() {
	if p.Excerpt != "" || len(p.Body) == 0 {
		return
	}
	p.Excerpt = Excerpt(PlainText(p.Body))
}
