// Package upload stores submitted architecture diagrams on disk until the job
// that references them finishes.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// DefaultMaxBytes is the largest accepted diagram.
const DefaultMaxBytes int64 = 10 << 20

var (
	ErrTooLarge        = errors.New("file exceeds the maximum upload size")
	ErrUnsupportedType = errors.New("unsupported image type")
)

var allowed = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// Saver writes diagrams into a single directory.
type Saver struct {
	dir      string
	maxBytes int64
}

// NewSaver creates a Saver writing into dir. A non-positive maxBytes uses
// DefaultMaxBytes.
func NewSaver(dir string, maxBytes int64) *Saver {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Saver{dir: dir, maxBytes: maxBytes}
}

// MaxBytes is the largest upload Save accepts.
func (s *Saver) MaxBytes() int64 { return s.maxBytes }

// Save copies r into a new file named diagram-<ULID><ext> and returns its
// path. Both the extension of filename and the sniffed content must be an
// accepted image type. Nothing is left on disk when Save fails.
func (s *Saver) Save(r io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := allowed[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedType, ext)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if got := http.DetectContentType(head); got != want {
		return "", fmt.Errorf("%w: content is %s", ErrUnsupportedType, got)
	}

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.dir, "diagram-"+ulid.Make().String()+ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(io.MultiReader(bytes.NewReader(head), r), s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}
