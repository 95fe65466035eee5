package imageproc

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whitePage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func TestAdaptiveThresholdKeepsThinStrokes(t *testing.T) {
	img := whitePage(40, 40)
	for x := 5; x < 35; x++ {
		img.SetGray(x, 20, color.Gray{Y: 0})
		img.SetGray(x, 21, color.Gray{Y: 0})
	}

	out, err := NewAdaptiveThresholdProcessor(11, 2).Process(img)
	require.NoError(t, err)
	gray := out.(*image.Gray)

	assert.Equal(t, uint8(0), gray.GrayAt(20, 20).Y)
	assert.Equal(t, uint8(0), gray.GrayAt(20, 21).Y)
	assert.Equal(t, uint8(255), gray.GrayAt(20, 5).Y)
	assert.Equal(t, uint8(255), gray.GrayAt(0, 0).Y)
}

func TestAdaptiveThresholdUniformPageStaysWhite(t *testing.T) {
	out, err := NewAdaptiveThresholdProcessor(11, 2).Process(whitePage(16, 16))
	require.NoError(t, err)
	for _, v := range out.(*image.Gray).Pix {
		require.Equal(t, uint8(255), v)
	}
}

func TestMorphCloseRemovesSpecks(t *testing.T) {
	img := whitePage(9, 9)
	img.SetGray(4, 4, color.Gray{Y: 0})

	out, err := NewMorphCloseProcessor(3).Process(img)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), out.(*image.Gray).GrayAt(4, 4).Y)

	same, err := NewMorphCloseProcessor(1).Process(img)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), same.(*image.Gray).GrayAt(4, 4).Y)
}

func TestDefaultChainIsDeterministic(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 30, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			c := color.RGBA{R: 250, G: 250, B: 250, A: 255}
			if x == 15 {
				c = color.RGBA{R: 10, G: 10, B: 10, A: 255}
			}
			src.Set(x, y, c)
		}
	}

	chain := DefaultChain(1)
	a, err := chain.Process(src)
	require.NoError(t, err)
	b, err := chain.Process(src)
	require.NoError(t, err)

	assert.Equal(t, a.(*image.Gray).Pix, b.(*image.Gray).Pix)
	assert.Equal(t, image.Rect(0, 0, 30, 30), a.Bounds())
}

func TestChainRejectsNil(t *testing.T) {
	_, err := DefaultChain(1).Process(nil)
	assert.Error(t, err)
}
