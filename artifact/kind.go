package artifact

import (
	"fmt"
	"strings"
)

// Kind is the requested output kind.
type Kind string

const (
	KindRaster   Kind = "png"
	KindDocument Kind = "html"
)

// Expected file names written by the images, by kind.
const (
	RasterName   = "chart.png"
	DocumentName = "plot.html"
)

// acceptedExtensions is the set recognized by the fallback scan.
var acceptedExtensions = map[string]Kind{
	".png":  KindRaster,
	".html": KindDocument,
}

// ParseKind accepts png/raster and html/document.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png", "raster":
		return KindRaster, nil
	case "html", "document":
		return KindDocument, nil
	default:
		return "", fmt.Errorf("unsupported output type: %q, must be 'png' or 'html'", s)
	}
}

// Extension returns the file extension for k, including the dot.
func (k Kind) Extension() string {
	return "." + string(k)
}

// ExpectedName returns the file name the image contract fixes for k.
func (k Kind) ExpectedName() string {
	if k == KindDocument {
		return DocumentName
	}
	return RasterName
}

// ContentType returns the MIME type served for k.
func (k Kind) ContentType() string {
	if k == KindDocument {
		return "text/html; charset=utf-8"
	}
	return "image/png"
}
