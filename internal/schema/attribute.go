package schema

import (
	"encoding/json"
	"errors"
	"fmt"
)

type AttributeType string

const (
	TypeString         AttributeType = "string"
	TypeArray          AttributeType = "array"
	TypeRecord         AttributeType = "record"
	TypeArrayOfRecords AttributeType = "arrayOfRecords"
)

// MaxDepth bounds how deeply stored attribute trees may nest.
const MaxDepth = 8

var ErrAttributeTooDeep = errors.New("attribute tree exceeds maximum depth")

// Attribute is one named field of a model version. Only record and
// arrayOfRecords attributes carry children.
type Attribute struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Type        AttributeType `json:"type"`
	Children    []Attribute   `json:"children,omitempty"`
}

func (a Attribute) nested() bool {
	return a.Type == TypeRecord || a.Type == TypeArrayOfRecords
}

// ParseAttributes decodes a stored attribute tree.
func ParseAttributes(raw []byte) ([]Attribute, error) {
	var attrs []Attribute
	if len(raw) == 0 {
		return attrs, nil
	}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	if d := depth(attrs); d > MaxDepth {
		return nil, fmt.Errorf("%w: %d > %d", ErrAttributeTooDeep, d, MaxDepth)
	}
	return attrs, nil
}

func depth(attrs []Attribute) int {
	max := 0
	for _, a := range attrs {
		d := 1
		if a.nested() {
			d += depth(a.Children)
		}
		if d > max {
			max = d
		}
	}
	return max
}
