// Package job is the dead-letter store for extraction jobs the worker gave
// up on.
package job

import (
	"encoding/json"
	"time"
)

type Job struct {
	ID           string          `json:"id"`
	ExtractionID string          `json:"extractionId"`
	Handler      string          `json:"handler"`
	Payload      json.RawMessage `json:"payload"`
	Error        string          `json:"error"`
	Retries      int             `json:"retries"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Summary is a dead-lettered job with the fields of its extraction payload an
// operator needs before deciding to retry it.
type Summary struct {
	Job
	ModelVersionID string   `json:"modelVersionId,omitempty"`
	CorrelationID  string   `json:"correlationId,omitempty"`
	Files          []string `json:"files"`
	Decodable      bool     `json:"decodable"`
}

// Summarize reads the extraction payload of j. Payloads that do not decode,
// such as malformed messages stored verbatim, are reported as not decodable.
func Summarize(j Job) Summary {
	s := Summary{Job: j, Files: []string{}}
	var p struct {
		ModelVersionID string `json:"modelVersionId"`
		CorrelationID  string `json:"correlationId"`
		Files          []struct {
			FileName string `json:"fileName"`
		} `json:"files"`
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return s
	}
	s.Decodable = true
	s.ModelVersionID = p.ModelVersionID
	s.CorrelationID = p.CorrelationID
	for _, f := range p.Files {
		s.Files = append(s.Files, f.FileName)
	}
	return s
}
