package services

import (
	"fmt"
	"strings"

	"campaign-generator/backend/pkg/models"
)

const extractPromptHeader = `You are an expert at parsing marketing email campaign requests.
Extract the following from the user's campaign prompt:
1. AUDIENCE: who should receive this campaign (location, demographics, behavior)
2. OFFER: what content or offer should be in the email (discounts, promotions, products)
3. SCHEDULE: when the campaign should be sent (date and time)

Also propose best-effort defaults for every component, even the ones that are
clearly specified, and list which components are missing or ambiguous.
Prioritize: audience criteria > offer details > datetime specifics.

Respond with JSON only, matching this structure exactly:
{
  "audience": "description of target audience, empty string if unknown",
  "offer": "description of campaign content and offer, empty string if unknown",
  "schedule": "scheduled date and time, empty string if unknown",
  "defaults": {"audience": "...", "offer": "...", "schedule": "..."},
  "missing": ["audience", "offer", "datetime"]
}`

// ExtractPrompt builds the extraction prompt for a raw campaign request.
func ExtractPrompt(userPrompt string) string {
	return extractPromptHeader + "\n\nCampaign request:\n" + strings.TrimSpace(userPrompt)
}

// RankPrompt builds the prompt that scores candidate smart lists against an
// audience description. Candidates are rendered one per line as "id: name
// (size N)".
func RankPrompt(audience string, candidates []string) string {
	var b strings.Builder
	b.WriteString("You rank existing contact lists against a target audience description.\n")
	b.WriteString("Score each candidate 0-100 for relevance and give a short reason.\n")
	b.WriteString("Respond with a JSON array only: [{\"id\": \"...\", \"score\": 0, \"reason\": \"...\"}]\n\n")
	fmt.Fprintf(&b, "Target audience: %s\n\nCandidates:\n", strings.TrimSpace(audience))
	for _, line := range candidates {
		b.WriteString("- " + line + "\n")
	}
	return b.String()
}

// ClarifyQuestion phrases the clarification question for a missing field.
func ClarifyQuestion(field models.FieldName) string {
	switch field {
	case models.FieldAudience:
		return "Who should receive this campaign? Describe the target audience (location, demographics, behavior)."
	case models.FieldOffer:
		return "What offer or content should the campaign include (discount, promotion, product)?"
	case models.FieldDatetime:
		return "When should the campaign be sent? Please give a date and time."
	}
	return fmt.Sprintf("Could you clarify the %s for this campaign?", field)
}
