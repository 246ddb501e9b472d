// Package assets holds the images shipped inside the binary.
package assets

import "embed"

// DefaultImage is loaded when no image path is given.
const DefaultImage = "sampleimage1.png"

// FS contains the bundled images.
//
//go:embed *.png
var FS embed.FS
