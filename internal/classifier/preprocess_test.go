package classifier

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"landuse-api/internal/model"
)

var testShape = model.InputShape{Channels: 3, Height: 64, Width: 64}

// solidPNG renders a single-color image, larger than the model input so the
// resize path is exercised.
func solidPNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTensorFromImage(t *testing.T) {
	t.Parallel()

	input, err := tensorFromImage(solidPNG(t, color.RGBA{R: 255, G: 0, B: 128, A: 255}), testShape)
	require.NoError(t, err)
	require.Len(t, input, testShape.Len())

	plane := testShape.Height * testShape.Width
	for i, v := range input {
		require.GreaterOrEqual(t, v, float32(0), "value %d below range", i)
		require.LessOrEqual(t, v, float32(1), "value %d above range", i)
	}
	// CHW layout: first plane red, second green, third blue.
	require.InDelta(t, 1.0, input[0], 0.01)
	require.InDelta(t, 0.0, input[plane], 0.01)
	require.InDelta(t, 128.0/255.0, input[2*plane], 0.01)
}

func TestTensorFromImageDeterministic(t *testing.T) {
	t.Parallel()

	raw := solidPNG(t, color.RGBA{R: 12, G: 200, B: 77, A: 255})

	first, err := tensorFromImage(raw, testShape)
	require.NoError(t, err)
	second, err := tensorFromImage(raw, testShape)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestTensorFromImageBadBytes(t *testing.T) {
	t.Parallel()

	for _, raw := range [][]byte{
		[]byte{0x00},
		[]byte("not an image at all"),
		solidPNG(t, color.RGBA{A: 255})[:20], // truncated PNG
	} {
		_, err := tensorFromImage(raw, testShape)
		require.Error(t, err)

		var perr *PreprocessError
		require.ErrorAs(t, err, &perr)
	}
}

func TestArgmax(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, argmax([]float32{5}))
	require.Equal(t, 2, argmax([]float32{0.1, 0.3, 0.9, 0.2}))
	require.Equal(t, 0, argmax([]float32{0.5, 0.5, 0.5}))
	require.Equal(t, 3, argmax([]float32{-4, -3, -2, -1}))
}
