// Package qr extracts the text of a QR code from an image
package qr

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/go-errors/errors"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Scan decodes a PNG or JPEG image and returns the text of the QR code in it
func Scan(r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", errors.WrapPrefix(err, "Could not decode image", 0)
	}

	return ScanImage(img)
}

func ScanImage(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", errors.WrapPrefix(err, "Could not binarize image", 0)
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", errors.WrapPrefix(err, "Could not find QR code in image", 0)
	}

	return result.GetText(), nil
}
