// Package contacts talks to the external contact-list directory API and
// ranks its smart lists against an audience description.
package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"campaign-generator/backend/pkg/models"
)

// ErrNoLocation indicates the session has no location context to query with.
var ErrNoLocation = errors.New("no location id available")

// SmartList is one existing contact list as returned by the directory API.
type SmartList struct {
	ID   string
	Name string
	Size int
}

// ListProvider fetches the smart lists available for a location. Absence of
// a location, auth failures, and empty results are all non-fatal to callers:
// they route to the no-matches branch.
type ListProvider interface {
	SmartLists(ctx context.Context, location models.Location, creds models.Credentials) ([]SmartList, error)
}

// HTTPListProvider is the REST implementation of ListProvider.
type HTTPListProvider struct {
	apiURL string
	apiKey string
	client *http.Client
}

// NewHTTPListProvider creates a provider against the given base URL. The
// configured API key is a fallback; per-session credentials take precedence.
func NewHTTPListProvider(apiURL, apiKey string) *HTTPListProvider {
	return &HTTPListProvider{
		apiURL: apiURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// smartListDocument mirrors the directory API's JSON:API response shape.
type smartListDocument struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name         string `json:"name"`
			DisplayName  string `json:"display_name"`
			ContactCount int    `json:"contact_count"`
		} `json:"attributes"`
	} `json:"data"`
}

// SmartLists fetches every smart list for the location.
func (p *HTTPListProvider) SmartLists(ctx context.Context, location models.Location, creds models.Credentials) ([]SmartList, error) {
	if location.ID == "" {
		return nil, ErrNoLocation
	}

	base := p.apiURL
	if creds.APIURL != "" {
		base = creds.APIURL
	}
	endpoint := fmt.Sprintf("%s/locations/%s/smart_lists", base, url.PathEscape(location.ID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	switch {
	case creds.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+creds.BearerToken)
	case creds.APIKey != "":
		req.Header.Set("X-Api-Key", creds.APIKey)
	case p.apiKey != "":
		req.Header.Set("X-Api-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list smart lists: status code %d", resp.StatusCode)
	}

	var doc smartListDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	lists := make([]SmartList, 0, len(doc.Data))
	for _, item := range doc.Data {
		name := item.Attributes.DisplayName
		if name == "" {
			name = item.Attributes.Name
		}
		lists = append(lists, SmartList{
			ID:   item.ID,
			Name: name,
			Size: item.Attributes.ContactCount,
		})
	}
	return lists, nil
}
