package classifier

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"

	"landuse-api/internal/model"
)

// tensorFromImage decodes raw image bytes and converts them into the CHW
// float32 layout the model expects, values normalized to [0,1]. Touches only
// per-request data, so it is safe to run outside the inference lock.
func tensorFromImage(imageBytes []byte, shape model.InputShape) ([]float32, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, &PreprocessError{Err: err}
	}

	resized := resize.Resize(uint(shape.Width), uint(shape.Height), img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height

	input := make([]float32, shape.Channels*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			idx := y*width + x
			input[idx] = float32(r) / 65535.0
			if shape.Channels > 1 {
				input[plane+idx] = float32(g) / 65535.0
			}
			if shape.Channels > 2 {
				input[2*plane+idx] = float32(b) / 65535.0
			}
		}
	}

	return input, nil
}

func argmax(scores []float32) int {
	maxIdx := 0
	maxVal := scores[0]
	for i, val := range scores {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	return maxIdx
}
