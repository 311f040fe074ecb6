package integration

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/alereyleyva/extractify/internal/crypto"
)

const (
	defaultWebhookMethod  = "POST"
	defaultWebhookTimeout = 10000
	defaultSheetsHeader   = 1
)

type WebhookConfig struct {
	URL       string                  `json:"url"`
	Method    string                  `json:"method"`
	Headers   map[string]string       `json:"headers,omitempty"`
	TimeoutMs int                     `json:"timeoutMs"`
	Secret    *crypto.EncryptedSecret `json:"secret,omitempty"`
}

type SheetsConfig struct {
	SpreadsheetID string         `json:"spreadsheetId"`
	SheetName     string         `json:"sheetName"`
	HeaderRow     int            `json:"headerRow"`
	OAuth         *SheetsOAuth   `json:"oauth,omitempty"`
	ModelMappings []ModelMapping `json:"modelMappings"`
}

// SheetsOAuth is the Google connection embedded in a sheets target.
type SheetsOAuth struct {
	AccountEmail         string                  `json:"accountEmail,omitempty"`
	Scopes               []string                `json:"scopes"`
	RefreshToken         crypto.EncryptedSecret  `json:"refreshToken"`
	AccessToken          *crypto.EncryptedSecret `json:"accessToken,omitempty"`
	AccessTokenExpiresAt *time.Time              `json:"accessTokenExpiresAt,omitempty"`
}

type ModelMapping struct {
	ModelID        string   `json:"modelId,omitempty"`
	ModelVersionID string   `json:"modelVersionId"`
	Columns        []Column `json:"columns"`
}

type Transform string

const (
	TransformRaw     Transform = "raw"
	TransformJSON    Transform = "json"
	TransformJoin    Transform = "join"
	TransformDateISO Transform = "date_iso"
)

type Column struct {
	Header     string    `json:"header"`
	SourcePath string    `json:"sourcePath"`
	Transform  Transform `json:"transform"`
	Separator  *string   `json:"separator,omitempty"`
	Fallback   *string   `json:"fallback,omitempty"`
}

// MappingFor returns the column mapping for a model version.
func (c *SheetsConfig) MappingFor(modelVersionID string) (*ModelMapping, bool) {
	for i := range c.ModelMappings {
		if c.ModelMappings[i].ModelVersionID == modelVersionID {
			return &c.ModelMappings[i], true
		}
	}
	return nil, false
}

const secretSchema = `{
	"type": "object",
	"required": ["version", "algorithm", "iv", "tag", "data"],
	"properties": {
		"version": {"type": "string"},
		"algorithm": {"const": "aes-256-gcm"},
		"iv": {"type": "string", "minLength": 1},
		"tag": {"type": "string", "minLength": 1},
		"data": {"type": "string"}
	}
}`

var webhookSchema = jsonschema.MustCompileString("webhook.json", `{
	"type": "object",
	"required": ["url"],
	"properties": {
		"url": {"type": "string", "pattern": "^https?://"},
		"method": {"enum": ["POST", "PUT", "PATCH"]},
		"headers": {"type": "object", "additionalProperties": {"type": "string"}},
		"timeoutMs": {"type": "integer", "minimum": 1, "maximum": 120000},
		"secret": `+secretSchema+`
	}
}`)

var sheetsSchema = jsonschema.MustCompileString("sheets.json", `{
	"type": "object",
	"required": ["spreadsheetId", "sheetName", "modelMappings"],
	"properties": {
		"spreadsheetId": {"type": "string", "minLength": 1},
		"sheetName": {"type": "string", "minLength": 1},
		"headerRow": {"type": "integer", "minimum": 1},
		"oauth": {
			"type": "object",
			"required": ["refreshToken"],
			"properties": {
				"accountEmail": {"type": "string"},
				"scopes": {"type": "array", "items": {"type": "string"}},
				"refreshToken": `+secretSchema+`,
				"accessToken": `+secretSchema+`,
				"accessTokenExpiresAt": {"type": "string"}
			}
		},
		"modelMappings": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["modelVersionId", "columns"],
				"properties": {
					"modelId": {"type": "string"},
					"modelVersionId": {"type": "string", "minLength": 1},
					"columns": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["header", "sourcePath", "transform"],
							"properties": {
								"header": {"type": "string", "minLength": 1},
								"sourcePath": {"type": "string"},
								"transform": {"enum": ["raw", "json", "join", "date_iso"]},
								"separator": {"type": "string"},
								"fallback": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`)

// ParseWebhookConfig validates raw and applies defaults.
func ParseWebhookConfig(raw json.RawMessage) (*WebhookConfig, error) {
	if err := validateConfig(webhookSchema, raw); err != nil {
		return nil, err
	}
	var cfg WebhookConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Method == "" {
		cfg.Method = defaultWebhookMethod
	}
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = defaultWebhookTimeout
	}
	return &cfg, nil
}

// ParseSheetsConfig validates raw and applies defaults.
func ParseSheetsConfig(raw json.RawMessage) (*SheetsConfig, error) {
	if err := validateConfig(sheetsSchema, raw); err != nil {
		return nil, err
	}
	var cfg SheetsConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.HeaderRow == 0 {
		cfg.HeaderRow = defaultSheetsHeader
	}
	return &cfg, nil
}

func validateConfig(s *jsonschema.Schema, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
