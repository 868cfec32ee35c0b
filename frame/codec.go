package frame

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"strings"

	"github.com/Jiadezhende/CleanSightBackend/errors"
)

const dataURLPrefix = "data:image/jpeg;base64,"

// jpegMagic is the JPEG SOI marker every valid payload must start with.
var jpegMagic = []byte{0xFF, 0xD8}

// ValidateJPEG checks that the payload is a decodable JPEG image.
// Malformed payloads are rejected at ingest before any state is mutated.
func ValidateJPEG(data []byte) error {
	if len(data) == 0 {
		return errors.WrapInvalid(errors.ErrEmptyFrame, "frame", "ValidateJPEG", "payload check")
	}
	if !bytes.HasPrefix(data, jpegMagic) {
		return errors.WrapInvalid(errors.ErrDecodeFailed, "frame", "ValidateJPEG", "JPEG marker check")
	}
	if _, err := jpeg.DecodeConfig(bytes.NewReader(data)); err != nil {
		return errors.WrapInvalid(errors.ErrDecodeFailed, "frame", "ValidateJPEG", "JPEG header decode")
	}
	return nil
}

// DecodeBase64 decodes a base64-encoded JPEG payload as delivered by network
// clients. A leading data-URL prefix is tolerated.
func DecodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimPrefix(payload, dataURLPrefix)
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, errors.WrapInvalid(errors.ErrEmptyFrame, "frame", "DecodeBase64", "payload check")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrDecodeFailed, "frame", "DecodeBase64", "base64 decode")
	}
	if err := ValidateJPEG(data); err != nil {
		return nil, err
	}
	return data, nil
}

// EncodeDataURL wraps JPEG bytes as a data URL for live-preview push.
func EncodeDataURL(jpegData []byte) string {
	return dataURLPrefix + base64.StdEncoding.EncodeToString(jpegData)
}

// EncodeBase64 encodes JPEG bytes as plain base64 without the data-URL prefix.
func EncodeBase64(jpegData []byte) string {
	return base64.StdEncoding.EncodeToString(jpegData)
}

// Decode decodes a JPEG payload into an image for overlay drawing.
func Decode(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrDecodeFailed, "frame", "Decode", "JPEG decode")
	}
	return img, nil
}

// EncodeJPEG encodes an image back to JPEG bytes at preview quality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, errors.WrapTransient(err, "frame", "EncodeJPEG", "JPEG encode")
	}
	return buf.Bytes(), nil
}
