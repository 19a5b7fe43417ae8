package types

import (
	"encoding/json"
	"time"
)

// SearchRequest is a search submitted by a client. Country and SummaryLang are
// two-letter codes; empty values are replaced with defaults before forwarding.
type SearchRequest struct {
	Query       string `json:"query"`
	Country     string `json:"country,omitempty"`
	SummaryLang string `json:"summaryLang,omitempty"`
}

// UnmarshalJSON accepts both summaryLang and summary_lang
func (r *SearchRequest) UnmarshalJSON(data []byte) error {
	var wire struct {
		Query            string `json:"query"`
		Country          string `json:"country"`
		SummaryLang      string `json:"summaryLang"`
		SummaryLangSnake string `json:"summary_lang"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	r.Query = wire.Query
	r.Country = wire.Country
	r.SummaryLang = firstNonEmpty(wire.SummaryLang, wire.SummaryLangSnake)
	return nil
}

// SearchResult is a single result returned by the backend
type SearchResult struct {
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Link     string `json:"link"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// UnmarshalJSON accepts both imageUrl and image_url
func (r *SearchResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		Title         string  `json:"title"`
		Snippet       string  `json:"snippet"`
		Link          string  `json:"link"`
		ImageURL      *string `json:"imageUrl"`
		ImageURLSnake *string `json:"image_url"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	r.Title = wire.Title
	r.Snippet = wire.Snippet
	r.Link = wire.Link
	r.ImageURL = ""
	if wire.ImageURL != nil {
		r.ImageURL = *wire.ImageURL
	}
	if r.ImageURL == "" && wire.ImageURLSnake != nil {
		r.ImageURL = *wire.ImageURLSnake
	}
	return nil
}

// SearchResponse is the backend reply for a search
type SearchResponse struct {
	Query       string         `json:"query"`
	Country     string         `json:"country"`
	SummaryLang string         `json:"summaryLang"`
	Results     []SearchResult `json:"results"`
	Summary     string         `json:"summary"`
}

// UnmarshalJSON accepts the snake_case field names the backend emits
// (selected_country, summary_lang) alongside the camelCase ones.
func (r *SearchResponse) UnmarshalJSON(data []byte) error {
	var wire struct {
		Query            string         `json:"query"`
		Country          string         `json:"country"`
		SelectedCountry  string         `json:"selected_country"`
		SummaryLang      string         `json:"summaryLang"`
		SummaryLangSnake string         `json:"summary_lang"`
		Results          []SearchResult `json:"results"`
		Summary          string         `json:"summary"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	r.Query = wire.Query
	r.Country = firstNonEmpty(wire.Country, wire.SelectedCountry)
	r.SummaryLang = firstNonEmpty(wire.SummaryLang, wire.SummaryLangSnake)
	r.Results = wire.Results
	r.Summary = wire.Summary
	return nil
}

// HistoryEntry is one completed search kept for the lifetime of a session.
// Entries are never mutated after creation.
type HistoryEntry struct {
	ID          string         `json:"id"`
	Query       string         `json:"query"`
	Country     string         `json:"country"`
	SummaryLang string         `json:"summaryLang"`
	Results     []SearchResult `json:"results"`
	Summary     string         `json:"summary"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// NewHistoryEntry builds an entry from a backend response. The results slice
// is copied so later changes to resp do not leak into the entry.
func NewHistoryEntry(id string, resp *SearchResponse, createdAt time.Time) HistoryEntry {
	results := make([]SearchResult, len(resp.Results))
	copy(results, resp.Results)

	return HistoryEntry{
		ID:          id,
		Query:       resp.Query,
		Country:     resp.Country,
		SummaryLang: resp.SummaryLang,
		Results:     results,
		Summary:     resp.Summary,
		CreatedAt:   createdAt,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
