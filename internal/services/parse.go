package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"campaign-generator/backend/pkg/models"
)

// ParsedCampaign is the structured output expected from the extraction
// prompt. Empty fields are treated as missing regardless of what the model
// declared.
type ParsedCampaign struct {
	Audience string               `json:"audience"`
	Offer    string               `json:"offer"`
	Schedule string               `json:"schedule"`
	Defaults models.FieldDefaults `json:"defaults"`
	Missing  []string             `json:"missing"`
}

// DecodeParsedCampaign parses raw model output into a ParsedCampaign.
// Markdown code fences around the JSON are tolerated.
func DecodeParsedCampaign(raw string) (ParsedCampaign, error) {
	var parsed ParsedCampaign
	cleaned := StripCodeFences(raw)
	if cleaned == "" {
		return parsed, fmt.Errorf("empty completion output")
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return parsed, fmt.Errorf("failed to decode parsed campaign: %w", err)
	}
	parsed.Audience = strings.TrimSpace(parsed.Audience)
	parsed.Offer = strings.TrimSpace(parsed.Offer)
	parsed.Schedule = strings.TrimSpace(parsed.Schedule)
	return parsed, nil
}

// MissingFields derives the priority-ordered list of fields still needing
// clarification: any empty field plus any field the model flagged.
func (p ParsedCampaign) MissingFields() []models.FieldName {
	flagged := map[models.FieldName]bool{}
	for _, name := range p.Missing {
		switch models.FieldName(strings.ToLower(strings.TrimSpace(name))) {
		case models.FieldAudience:
			flagged[models.FieldAudience] = true
		case models.FieldOffer:
			flagged[models.FieldOffer] = true
		case models.FieldDatetime:
			flagged[models.FieldDatetime] = true
		}
	}
	if p.Audience == "" {
		flagged[models.FieldAudience] = true
	}
	if p.Offer == "" {
		flagged[models.FieldOffer] = true
	}
	if p.Schedule == "" {
		flagged[models.FieldDatetime] = true
	}

	var missing []models.FieldName
	for _, name := range models.FieldPriority {
		if flagged[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// StripCodeFences removes a surrounding markdown code fence, with or without
// a language tag, from model output.
func StripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		// Drop a language tag such as "json" on the fence line.
		first := strings.TrimSpace(text[:idx])
		if first != "" && !strings.ContainsAny(first, "{}[]") {
			text = text[idx+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
