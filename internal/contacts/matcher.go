package contacts

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"campaign-generator/backend/internal/services"
	"campaign-generator/backend/pkg/models"
)

// MaxMatches caps how many ranked lists a match returns.
const MaxMatches = 3

// Matcher ranks smart lists against an audience description using the
// completion service, with a lexical fallback when the model output cannot
// be parsed.
type Matcher struct {
	completion services.CompletionClient
}

// NewMatcher creates a new Matcher.
func NewMatcher(completion services.CompletionClient) *Matcher {
	return &Matcher{completion: completion}
}

type ranking struct {
	ID     string `json:"id"`
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// Rank returns the top MaxMatches lists sorted by descending score. It never
// fails: a completion error or unparsable output degrades to lexical
// scoring, and an empty candidate set yields an empty result.
func (m *Matcher) Rank(ctx context.Context, audience string, lists []SmartList) []models.MatchedList {
	if len(lists) == 0 {
		return nil
	}

	scored, err := m.rankWithCompletion(ctx, audience, lists)
	if err != nil {
		scored = rankLexically(audience, lists)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > MaxMatches {
		scored = scored[:MaxMatches]
	}
	return scored
}

func (m *Matcher) rankWithCompletion(ctx context.Context, audience string, lists []SmartList) ([]models.MatchedList, error) {
	byID := make(map[string]SmartList, len(lists))
	candidates := make([]string, 0, len(lists))
	for _, list := range lists {
		byID[list.ID] = list
		candidates = append(candidates, fmt.Sprintf("%s: %s (size %d)", list.ID, list.Name, list.Size))
	}

	raw, err := m.completion.Complete(ctx, services.RankPrompt(audience, candidates))
	if err != nil {
		return nil, err
	}

	var rankings []ranking
	if err := json.Unmarshal([]byte(services.StripCodeFences(raw)), &rankings); err != nil {
		return nil, fmt.Errorf("failed to decode rankings: %w", err)
	}

	var matched []models.MatchedList
	for _, r := range rankings {
		list, ok := byID[r.ID]
		if !ok {
			continue
		}
		score := r.Score
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		matched = append(matched, models.MatchedList{
			ID:     list.ID,
			Name:   list.Name,
			Size:   list.Size,
			Score:  score,
			Reason: r.Reason,
		})
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("rankings matched no candidates")
	}
	return matched, nil
}

// rankLexically scores lists by token overlap between the audience
// description and the list name.
func rankLexically(audience string, lists []SmartList) []models.MatchedList {
	terms := tokenize(audience)
	matched := make([]models.MatchedList, 0, len(lists))
	for _, list := range lists {
		overlap := 0
		nameTokens := tokenize(list.Name)
		for token := range nameTokens {
			if terms[token] {
				overlap++
			}
		}
		score := 0
		if len(nameTokens) > 0 {
			score = overlap * 100 / len(nameTokens)
		}
		matched = append(matched, models.MatchedList{
			ID:     list.ID,
			Name:   list.Name,
			Size:   list.Size,
			Score:  score,
			Reason: "name overlap with audience description",
		})
	}
	return matched
}

func tokenize(text string) map[string]bool {
	tokens := map[string]bool{}
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(word) > 2 {
			tokens[word] = true
		}
	}
	return tokens
}
