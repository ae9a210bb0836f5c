package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/c360studio/provreg/refcheck"
)

// Client talks to the trusted-party service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a trusted-party client. A nil httpClient uses
// http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// Issue submits a canonical payload for signing and returns the token.
func (c *Client) Issue(ctx context.Context, req IssueRequest) (*SignedToken, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tokens", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("trusted party returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var tok SignedToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &tok, nil
}

// Fetch retrieves the token previously issued for a stored bundle.
func (c *Client) Fetch(ctx context.Context, uri string) (*SignedToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("build token fetch: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token fetch returned %d for %s", resp.StatusCode, uri)
	}

	var tok SignedToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode fetched token: %w", err)
	}
	return &tok, nil
}

// RefFetcher adapts Client to the resolver's TokenFetcher interface.
type RefFetcher struct {
	Client *Client
}

// FetchToken implements refcheck.TokenFetcher.
func (f RefFetcher) FetchToken(ctx context.Context, uri string) (refcheck.TokenInfo, error) {
	tok, err := f.Client.Fetch(ctx, uri)
	if err != nil {
		return refcheck.TokenInfo{}, err
	}
	return refcheck.TokenInfo{
		Digest:    tok.Data.DocumentDigest,
		Algorithm: tok.Data.AdditionalData.HashFunction,
	}, nil
}
