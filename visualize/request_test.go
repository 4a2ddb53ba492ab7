package visualize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/plotbox/artifact"
	"github.com/isdmx/plotbox/outcome"
)

func TestParseRenderMode(t *testing.T) {
	tests := map[string]RenderMode{
		"":            RenderStatic,
		"static":      RenderStatic,
		"Interactive": RenderInteractive,
		"3d":          RenderThreeD,
		"threeD":      RenderThreeD,
	}
	for in, want := range tests {
		got, err := ParseRenderMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRenderMode("animated")
	assert.Error(t, err)
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest("plot(1:10)", " R ", "document", "interactive")
	require.NoError(t, err)
	assert.Equal(t, Request{Script: "plot(1:10)", Language: "r", OutputKind: artifact.KindDocument, RenderMode: RenderInteractive}, req)

	req, err = NewRequest("plt.plot()", "python", "", "")
	require.NoError(t, err)
	assert.Equal(t, artifact.KindRaster, req.OutputKind)
	assert.Equal(t, RenderStatic, req.RenderMode)

	tests := []struct {
		name                               string
		script, language, output, rendered string
	}{
		{"EmptyScript", "", "python", "png", "static"},
		{"MissingLanguage", "x", "", "png", "static"},
		{"BadOutput", "x", "python", "gif", "static"},
		{"BadMode", "x", "python", "png", "vr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRequest(tt.script, tt.language, tt.output, tt.rendered)
			require.Error(t, err)
			assert.Equal(t, outcome.KindInvalidRequest, outcome.KindOf(err))
		})
	}
}
