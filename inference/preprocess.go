package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// PrepareInput resizes img to a size x size square and writes it into dst as
// planar RGB (NCHW with a batch of one) scaled to [0, 1].
//
// Arguments:
//   - img: The image to prepare.
//   - size: The network input size.
//   - dst: The destination buffer, at least 3 * size * size floats.
//
// Returns:
//   - error: An error if the destination is too small.
func PrepareInput(img image.Image, size int, dst []float32) error {
	if size <= 0 {
		return errors.Errorf("input size must be positive, got %d", size)
	}
	channelSize := size * size
	if len(dst) < channelSize*3 {
		return errors.Errorf("destination holds %d floats, needs %d (make sure it's the right shape!)",
			len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	img = resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
	bounds := img.Bounds()

	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}
