// Package render turns a signed credential token into a scannable image.
package render

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// ImageContentType is the MIME type of rendered credential images.
const ImageContentType = "image/png"

// imageSize is the square pixel size of the rendered QR code. 256px scans
// reliably from a phone screen at arm's length.
const imageSize = 256

// QR encodes the token into a PNG QR code. Medium error correction keeps the
// code dense enough for a 5-minute JWT while surviving screen glare.
func QR(token string) ([]byte, error) {
	png, err := qrcode.Encode(token, qrcode.Medium, imageSize)
	if err != nil {
		return nil, fmt.Errorf("render credential qr: %w", err)
	}
	return png, nil
}
