// Package extraction turns downloaded file bytes into plain text, choosing an
// extraction strategy by file type.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

var ErrUnsupportedFileType = errors.New("unsupported file type")

// Strategy extracts text from one family of file types.
type Strategy interface {
	Supports(fileType string) bool
	ExtractText(ctx context.Context, data []byte, fileName, fileURL string) (string, error)
}

// Dispatcher routes a file to the first strategy that supports its type.
type Dispatcher struct {
	strategies []Strategy
}

func NewDispatcher(strategies ...Strategy) *Dispatcher {
	return &Dispatcher{strategies: strategies}
}

func (d *Dispatcher) Dispatch(fileType string) (Strategy, error) {
	for _, s := range d.strategies {
		if s.Supports(fileType) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, fileType)
}

func (d *Dispatcher) ExtractText(ctx context.Context, fileType string, data []byte, fileName, fileURL string) (string, error) {
	s, err := d.Dispatch(fileType)
	if err != nil {
		return "", err
	}
	return s.ExtractText(ctx, data, fileName, fileURL)
}

// mediaType normalizes a MIME type or bare extension: lower case, no
// parameters, no leading dot.
func mediaType(fileType string) string {
	ft := strings.ToLower(strings.TrimSpace(fileType))
	if mt, _, err := mime.ParseMediaType(ft); err == nil {
		ft = mt
	}
	return strings.TrimPrefix(ft, ".")
}

// extension returns the lower-cased extension of name without the dot.
func extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

func matches(fileType, prefix string, exts []string) bool {
	ft := mediaType(fileType)
	if strings.HasPrefix(ft, prefix) {
		return true
	}
	for _, ext := range exts {
		if ft == ext {
			return true
		}
	}
	return false
}
