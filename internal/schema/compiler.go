package schema

import (
	"fmt"
	"strings"
)

const (
	FieldValue      = "value"
	FieldConfidence = "confidence"
)

// Compiled is the output shape and the matching instruction text for one
// attribute tree.
type Compiled struct {
	Schema       *Schema
	Instructions string
}

// Compile turns an attribute tree into the structured-output schema and
// the extraction instructions handed to the model.
func Compile(attrs []Attribute) *Compiled {
	return &Compiled{
		Schema:       objectOf(attrs, false),
		Instructions: Instructions(attrs),
	}
}

func objectOf(attrs []Attribute, nullable bool) *Schema {
	s := &Schema{
		Type:       KindObject,
		Nullable:   nullable,
		Properties: make(map[string]*Schema, len(attrs)),
	}
	for _, a := range attrs {
		s.Properties[a.Name] = field(a)
		s.Order = append(s.Order, a.Name)
		s.Required = append(s.Required, a.Name)
	}
	return s
}

// field wraps an attribute's value type as {value, confidence}.
func field(a Attribute) *Schema {
	return &Schema{
		Type:        KindObject,
		Description: a.Description,
		Properties: map[string]*Schema{
			FieldValue:      valueType(a),
			FieldConfidence: confidence(),
		},
		Order:    []string{FieldValue, FieldConfidence},
		Required: []string{FieldValue, FieldConfidence},
		wrapper:  true,
	}
}

func valueType(a Attribute) *Schema {
	switch a.Type {
	case TypeArray:
		return &Schema{Type: KindArray, Nullable: true, Items: &Schema{Type: KindString}}
	case TypeRecord:
		return recordOf(a.Children, true)
	case TypeArrayOfRecords:
		return &Schema{Type: KindArray, Nullable: true, Items: recordOf(a.Children, false)}
	default:
		return &Schema{Type: KindString, Nullable: true}
	}
}

func recordOf(children []Attribute, nullable bool) *Schema {
	if len(children) == 0 {
		return &Schema{
			Type:                 KindObject,
			Nullable:             nullable,
			AdditionalProperties: &Schema{Type: KindString},
		}
	}
	return objectOf(children, nullable)
}

func confidence() *Schema {
	lo, hi := 0.0, 1.0
	return &Schema{Type: KindNumber, Minimum: &lo, Maximum: &hi}
}

// DocumentSeparator is the line placed before each document's text in a
// multi-document prompt.
func DocumentSeparator(fileName string) string {
	return fmt.Sprintf("--- Document: %s ---", fileName)
}

// Instructions renders the human-readable extraction guidance for attrs.
func Instructions(attrs []Attribute) string {
	var b strings.Builder
	b.WriteString("Extract the following fields from the provided document(s):\n\n")
	writeFields(&b, attrs, 0)

	b.WriteString("\nThe input may contain several documents. Each document begins with a separator line of the form ")
	b.WriteString(`"` + DocumentSeparator("<fileName>") + `". `)
	b.WriteString("Use these separators to tell documents apart and to attribute each value to the document it came from ")
	b.WriteString("when content differs across documents.\n")

	b.WriteString("\nReturn every field as an object with a \"value\" and a \"confidence\" between 0 and 1:\n")
	b.WriteString("- 1.0: the value is stated explicitly and unambiguously\n")
	b.WriteString("- 0.8: the value is stated but required minor interpretation\n")
	b.WriteString("- 0.5: the value was inferred from surrounding context\n")
	b.WriteString("- 0.2: the value is a weak guess\n")
	b.WriteString("- 0.0: the value was not found; value MUST be null and confidence MUST be 0.0\n")
	return b.String()
}

func writeFields(b *strings.Builder, attrs []Attribute, level int) {
	indent := strings.Repeat("  ", level)
	for _, a := range attrs {
		fmt.Fprintf(b, "%s- %s (%s)", indent, a.Name, guidance(a))
		if a.Description != "" {
			fmt.Fprintf(b, ": %s", a.Description)
		}
		b.WriteString("\n")
		if a.nested() && len(a.Children) > 0 {
			writeFields(b, a.Children, level+1)
		}
	}
}

func guidance(a Attribute) string {
	switch a.Type {
	case TypeArray:
		return "array of strings"
	case TypeRecord:
		if len(a.Children) == 0 {
			return "object with free-form string values"
		}
		return "object with the following fields"
	case TypeArrayOfRecords:
		if len(a.Children) == 0 {
			return "array of objects with free-form string values"
		}
		return "array of objects, where each object has the following fields"
	default:
		return "string"
	}
}
