package extraction

import (
	"context"
	"fmt"
	"strings"
)

const BlockTypeLine = "LINE"

// Block is one unit of detected text, in document order.
type Block struct {
	Type string
	Text *string
}

// TextDetector is an OCR service returning detected text blocks.
type TextDetector interface {
	DetectText(ctx context.Context, data []byte) ([]Block, error)
}

type ImageStrategy struct {
	detector TextDetector
}

func NewImageStrategy(d TextDetector) *ImageStrategy {
	return &ImageStrategy{detector: d}
}

func (s *ImageStrategy) Supports(fileType string) bool {
	return matches(fileType, "image/", []string{"png", "jpg", "jpeg", "tif", "tiff"})
}

func (s *ImageStrategy) ExtractText(ctx context.Context, data []byte, fileName, _ string) (string, error) {
	blocks, err := s.detector.DetectText(ctx, data)
	if err != nil {
		return "", fmt.Errorf("detect text in %s: %w", fileName, err)
	}

	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type != BlockTypeLine || b.Text == nil || *b.Text == "" {
			continue
		}
		lines = append(lines, *b.Text)
	}
	return strings.Join(lines, "\n"), nil
}
