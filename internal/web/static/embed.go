// Package static embeds the kiosk frontend.
package static

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed all:dist/*
var distFS embed.FS

// GetFileSystem returns an http.FileSystem rooted at the embedded dist directory.
func GetFileSystem() http.FileSystem {
	fsys, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic(err)
	}
	return http.FS(fsys)
}

// HasDist reports whether a frontend was embedded.
func HasDist() bool {
	entries, err := fs.ReadDir(distFS, "dist")
	return err == nil && len(entries) > 0
}
