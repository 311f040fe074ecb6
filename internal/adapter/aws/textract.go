// Package aws adapts AWS Textract and Transcribe to the extraction
// capability interfaces.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/alereyleyva/extractify/internal/extraction"
)

type TextractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

type TextDetector struct {
	client TextractAPI
}

func NewTextDetector(client TextractAPI) *TextDetector {
	return &TextDetector{client: client}
}

func (d *TextDetector) DetectText(ctx context.Context, data []byte) ([]extraction.Block, error) {
	out, err := d.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: data},
	})
	if err != nil {
		return nil, err
	}

	blocks := make([]extraction.Block, 0, len(out.Blocks))
	for _, b := range out.Blocks {
		blocks = append(blocks, extraction.Block{Type: string(b.BlockType), Text: b.Text})
	}
	return blocks, nil
}
