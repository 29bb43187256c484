package capture

import (
	"errors"
	"image/color"
	"testing"

	"github.com/dixieflatline76/CoverSnap/pkg/panel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capturedOf(name panel.Name, w, h int, c color.Color) *CapturedImage {
	return &CapturedImage{Panel: name, PixelWidth: w, PixelHeight: h, Image: createTestImage(w, h, c)}
}

func TestCombine(t *testing.T) {
	green := color.NRGBA{0, 255, 0, 255}
	out, err := Combine(
		capturedOf(panel.Front, 202, 265, red),
		capturedOf(panel.Spine, 38, 265, green),
		capturedOf(panel.Back, 202, 265, blue),
	)
	require.NoError(t, err)

	assert.Equal(t, 442, out.Bounds().Dx())
	assert.Equal(t, 265, out.Bounds().Dy())
	assert.Equal(t, red, out.NRGBAAt(201, 100))
	assert.Equal(t, green, out.NRGBAAt(202, 100))
	assert.Equal(t, green, out.NRGBAAt(239, 100))
	assert.Equal(t, blue, out.NRGBAAt(240, 100))
}

func TestCombineHeightMismatch(t *testing.T) {
	_, err := Combine(
		capturedOf(panel.Front, 202, 265, red),
		capturedOf(panel.Spine, 38, 264, red),
		capturedOf(panel.Back, 202, 265, red),
	)
	var phm *PanelHeightMismatchError
	require.True(t, errors.As(err, &phm))
	assert.Equal(t, []PanelHeight{{panel.Front, 265}, {panel.Spine, 264}, {panel.Back, 265}}, phm.Heights)
	assert.Contains(t, err.Error(), "spine=264")
}

func TestCombineEmpty(t *testing.T) {
	_, err := Combine()
	assert.True(t, errors.Is(err, ErrNothingToCombine))
}
