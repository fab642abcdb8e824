package domain

type Author struct {
	Name  string `json:"name"`
	Image *Image `json:"image,omitempty"`
}
