// Package search talks to the Azure AI Search REST API. Two queries are
// issued on behalf of tools: a hybrid lexical+vector search with semantic
// re-ranking, and a key-filter lookup used for source citation.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"voicecart/internal/domain"
)

// topN caps every knowledge-base query. The model's instructions assume at
// most this many result blocks per search.
const topN = 5

// nearestNeighbors is the k for the vector component of hybrid queries.
const nearestNeighbors = 50

// Client queries one search index over REST.
type Client struct {
	cfg    domain.SearchConfig
	client *http.Client
}

// NewClient returns a search client for the configured index.
func NewClient(cfg domain.SearchConfig) *Client {
	return &Client{cfg: cfg, client: &http.Client{}}
}

type vectorQuery struct {
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	K      int    `json:"k"`
	Fields string `json:"fields"`
}

type searchRequest struct {
	Search                string        `json:"search,omitempty"`
	Filter                string        `json:"filter,omitempty"`
	QueryType             string        `json:"queryType,omitempty"`
	SemanticConfiguration string        `json:"semanticConfiguration,omitempty"`
	Top                   int           `json:"top,omitempty"`
	Select                string        `json:"select,omitempty"`
	VectorQueries         []vectorQuery `json:"vectorQueries,omitempty"`
}

type searchResponse struct {
	Value []map[string]any `json:"value"`
}

// Search runs the hybrid query and returns the delimited result text the
// model has been instructed to parse. Backend failures wrap
// domain.ErrSearchUnavailable.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	req := searchRequest{
		Search:                query,
		QueryType:             "semantic",
		SemanticConfiguration: c.cfg.SemanticConfiguration,
		Top:                   topN,
		Select:                selectFields,
	}
	if c.cfg.UseVectorQuery {
		req.VectorQueries = []vectorQuery{{
			Kind:   "text",
			Text:   query,
			K:      nearestNeighbors,
			Fields: c.cfg.EmbeddingField,
		}}
	}
	docs, err := c.query(ctx, req)
	if err != nil {
		return "", err
	}
	return FormatResults(docs), nil
}

// LookupSources fetches full documents for previously returned identifiers,
// for citation. IDs are combined into a key filter; callers are responsible
// for validating the IDs before they reach this query.
func (c *Client) LookupSources(ctx context.Context, ids []string) ([]domain.Source, error) {
	req := searchRequest{
		Filter: fmt.Sprintf("search.in(%s, '%s')", c.cfg.IdentifierField, strings.Join(ids, " OR ")),
		Select: selectFields,
	}
	docs, err := c.query(ctx, req)
	if err != nil {
		return nil, err
	}
	sources := make([]domain.Source, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, domain.Source{
			ID:      stringField(doc, c.cfg.IdentifierField),
			Title:   stringField(doc, c.cfg.TitleField),
			Content: stringField(doc, c.cfg.ContentField),
		})
	}
	return sources, nil
}

// query posts one request to the docs/search endpoint and decodes the result
// set. Any transport or non-200 failure wraps domain.ErrSearchUnavailable.
func (c *Client) query(ctx context.Context, body searchRequest) ([]map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("search marshal: %w", err)
	}
	url := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s",
		strings.TrimRight(c.cfg.Endpoint, "/"), c.cfg.Index, c.cfg.APIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrSearchUnavailable, resp.Status, msg)
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrSearchUnavailable, err)
	}
	return out.Value, nil
}

func stringField(doc map[string]any, field string) string {
	if v, ok := doc[field]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
