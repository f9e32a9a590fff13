// Package web embeds the reviewer-facing HTML templates for single-binary distribution.
package web

import "embed"

// Templates contains the answer form and its terminal-state pages.
//
//go:embed templates/*.html
var Templates embed.FS
