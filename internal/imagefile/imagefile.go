// Package imagefile handles the uploaded diagram on disk: loading it for the
// AI providers, re-encoding it for the report, and releasing it afterwards.
package imagefile

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// MimeType returns the image MIME type for path based on its extension,
// defaulting to image/jpeg.
func MimeType(path string) string {
	if m, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return m
	}
	return "image/jpeg"
}

// Load reads the image at path and returns its bytes and MIME type.
func Load(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read image %q: %w", path, err)
	}
	return data, MimeType(path), nil
}

// DataURL reads the image at path and encodes it as a data: URL.
func DataURL(path string) (string, error) {
	data, mime, err := Load(path)
	if err != nil {
		return "", err
	}
	return EncodeDataURL(data, mime), nil
}

// EncodeDataURL encodes raw image bytes as a data: URL.
func EncodeDataURL(data []byte, mime string) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// CleanupError reports a failure to release an uploaded image.
type CleanupError struct {
	Path string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("remove image %q: %v", e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

// Remove deletes the image at path. A missing file is not an error.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &CleanupError{Path: path, Err: err}
	}
	return nil
}
