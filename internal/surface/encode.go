package surface

import (
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/chai2010/webp"
)

// Encode writes img as "webp" or "png". quality applies to webp only.
func Encode(w io.Writer, img image.Image, format string, quality int) error {
	switch format {
	case "webp":
		if quality <= 0 || quality > 100 {
			quality = 80
		}
		return webp.Encode(w, img, &webp.Options{Lossless: false, Quality: float32(quality)})
	case "png":
		return png.Encode(w, img)
	default:
		return fmt.Errorf("unsupported image format %q", format)
	}
}

// ContentType returns the MIME type of an encoding format.
func ContentType(format string) string {
	switch format {
	case "webp":
		return "image/webp"
	case "png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
