// Package ui holds the server-rendered screens.
package ui

import "embed"

//go:embed templates/*.html
var Templates embed.FS
