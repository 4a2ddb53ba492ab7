package visualize

import (
	"fmt"
	"strings"

	"github.com/isdmx/plotbox/artifact"
	"github.com/isdmx/plotbox/outcome"
)

// RenderMode selects static or interactive rendering inside the image.
type RenderMode string

const (
	RenderStatic      RenderMode = "static"
	RenderInteractive RenderMode = "interactive"
	RenderThreeD      RenderMode = "3d"
)

// ParseRenderMode accepts static, interactive and 3d. Empty means static.
func ParseRenderMode(s string) (RenderMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "static":
		return RenderStatic, nil
	case "interactive":
		return RenderInteractive, nil
	case "3d", "threed", "three_d":
		return RenderThreeD, nil
	default:
		return "", fmt.Errorf("unsupported visualization type: %q, must be 'static', 'interactive' or '3d'", s)
	}
}

// Request is an accepted execution request.
type Request struct {
	Script     string
	Language   string
	OutputKind artifact.Kind
	RenderMode RenderMode
}

// DefaultOutputType is used when a submission names no output type.
const DefaultOutputType = "png"

// NewRequest parses the raw fields of a submission. Failures are InvalidRequest errors.
func NewRequest(script, language, outputType, renderMode string) (Request, error) {
	if strings.TrimSpace(outputType) == "" {
		outputType = DefaultOutputType
	}
	kind, err := artifact.ParseKind(outputType)
	if err != nil {
		return Request{}, outcome.InvalidRequest("%v", err)
	}
	mode, err := ParseRenderMode(renderMode)
	if err != nil {
		return Request{}, outcome.InvalidRequest("%v", err)
	}

	req := Request{
		Script:     script,
		Language:   strings.ToLower(strings.TrimSpace(language)),
		OutputKind: kind,
		RenderMode: mode,
	}
	if err := req.validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Script) == "" {
		return outcome.InvalidRequest("script is empty")
	}
	if r.Language == "" {
		return outcome.InvalidRequest("language is required")
	}
	switch r.OutputKind {
	case artifact.KindRaster, artifact.KindDocument:
	default:
		return outcome.InvalidRequest("unsupported output type: %q", r.OutputKind)
	}
	switch r.RenderMode {
	case RenderStatic, RenderInteractive, RenderThreeD:
	default:
		return outcome.InvalidRequest("unsupported visualization type: %q", r.RenderMode)
	}
	return nil
}
