package utils

import (
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/priya-sharma/stitchbook-api/pkg/apperrors"
)

const (
	// MaxImageSize is 10MB in bytes
	MaxImageSize = 10 * 1024 * 1024

	dataURLPrefix   = "data:"
	base64Marker    = ";base64,"
	defaultMimeType = "image/png"
)

// allowedImageExtensions maps accepted upload extensions to their MIME type.
var allowedImageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// EncodeImage converts raw image bytes into the self-describing inline
// representation stored inside an order's image list:
//
//	data:<mime>;base64,<payload>
//
// The encoding is deterministic and lossless: DecodeImage returns the exact
// input bytes.
func EncodeImage(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	return dataURLPrefix + mimeType + base64Marker + base64.StdEncoding.EncodeToString(data)
}

// DecodeImage is the inverse of EncodeImage. It returns the raw bytes and
// the embedded MIME type, or a DecodeError when the representation is
// malformed (missing markers, invalid base64 payload).
func DecodeImage(encoded string) ([]byte, string, error) {
	if !strings.HasPrefix(encoded, dataURLPrefix) {
		return nil, "", apperrors.NewDecodeError("missing data URL prefix")
	}

	rest := encoded[len(dataURLPrefix):]
	idx := strings.Index(rest, base64Marker)
	if idx < 0 {
		return nil, "", apperrors.NewDecodeError("missing base64 marker")
	}

	mimeType := rest[:idx]
	if mimeType == "" {
		return nil, "", apperrors.NewDecodeError("missing MIME type")
	}

	payload := rest[idx+len(base64Marker):]
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", apperrors.NewDecodeError(fmt.Sprintf("invalid base64 payload: %v", err))
	}

	return data, mimeType, nil
}

// ImageExtension returns the file extension for an inline image's MIME type,
// used when deriving the remote object path. Unknown types fall back to .bin.
func ImageExtension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	}
	return ".bin"
}

// FileUploadError represents a file upload validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// ValidateImageFile validates the uploaded file format and size
func ValidateImageFile(fileHeader *multipart.FileHeader) (string, error) {
	// Check file size
	if fileHeader.Size > MaxImageSize {
		return "", &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxImageSize/(1024*1024)),
		}
	}

	// Check file extension
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	mimeType, ok := allowedImageExtensions[ext]
	if !ok {
		return "", &FileUploadError{
			Code:    "INVALID_FILE_FORMAT",
			Message: "Only .png, .jpg and .jpeg files are allowed",
		}
	}

	return mimeType, nil
}
