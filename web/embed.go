// Package web holds the page templates and static assets compiled into the binary.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets
var assetFS embed.FS

// Assets is rooted at the assets directory: error pages at the top level,
// stylesheets and icons under static/.
func Assets() fs.FS {
	sub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// Static is rooted at assets/static and served under /static.
func Static() fs.FS {
	sub, err := fs.Sub(assetFS, "assets/static")
	if err != nil {
		panic(err)
	}
	return sub
}
