package qrtoken

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultImageSize matches the 300px QR code the teacher dashboard renders.
const DefaultImageSize = 300

// RenderPNG encodes a signed token into a scannable QR PNG.
func RenderPNG(token string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(token, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encoding QR image: %w", err)
	}
	return png, nil
}

// RenderDataURL returns the QR image as a data URL for direct embedding
// in an <img> tag.
func RenderDataURL(token string, size int) (string, error) {
	png, err := RenderPNG(token, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
