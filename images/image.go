// Package images - Image decoding and box geometry.
package images

import (
	"bytes"
	"image"
	// Registered decoders.
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
)

// Image represents an encoded image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// Decode decodes JPEG, PNG or WebP bytes.
//
// Arguments:
//   - data: The encoded image.
//
// Returns:
//   - image.Image: The decoded image.
//   - Image: The encoded image with its detected format and size.
//   - error: An error if the format is unsupported or the data is corrupt.
func Decode(data []byte) (image.Image, Image, error) {
	var (
		img    image.Image
		format string
		err    error
	)
	if isWebP(data) {
		img, err = webp.Decode(bytes.NewReader(data))
		format = string(FormatWebP)
	} else {
		img, format, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, Image{}, errors.Wrap(err, "decoding image")
	}
	bounds := img.Bounds()
	return img, Image{
		Format: ImageFormat(format),
		Data:   data,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// isWebP checks for the RIFF container with a WEBP form type.
func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}
