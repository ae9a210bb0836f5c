package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func signedFixture() SignedToken {
	return SignedToken{
		Data: TokenData{
			OriginatorID:              "acme",
			AuthorityID:               "mpa",
			TokenTimestamp:            "2026-09-01T10:00:00Z",
			DocumentCreationTimestamp: "2026-09-01T09:59:00Z",
			DocumentDigest:            "abc123",
			AdditionalData: AdditionalData{
				Bundle:       "http://registry.example.org/api/documents/acme/blood_sample",
				HashFunction: "SHA256",
			},
		},
		Signature: "sig-bytes",
	}
}

func TestClientIssue(t *testing.T) {
	var got IssueRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tokens" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode issue request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(signedFixture())
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	tok, err := client.Issue(context.Background(), IssueRequest{
		OrganizationID: "acme",
		Document:       "eyJ9",
		DocumentFormat: "json",
		Type:           GraphTypeGraph,
		GraphID:        "http://registry.example.org/api/documents/acme/blood_sample",
		CreatedOn:      "2026-09-01T09:59:00Z",
	})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if tok.Signature != "sig-bytes" || tok.Data.AuthorityID != "mpa" {
		t.Errorf("unexpected token %+v", tok)
	}
	if got.OrganizationID != "acme" || got.Type != GraphTypeGraph {
		t.Errorf("unexpected issue payload %+v", got)
	}
}

func TestClientIssueTrailingSlashBase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tokens" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(signedFixture())
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", nil, nil)
	if _, err := client.Issue(context.Background(), IssueRequest{}); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
}

func TestClientIssueError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "signing key unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Issue(context.Background(), IssueRequest{})
	if err == nil {
		t.Fatal("expected error on 503")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "signing key unavailable") {
		t.Errorf("error should carry status and body, got %v", err)
	}
}

func TestClientFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		json.NewEncoder(w).Encode(signedFixture())
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	tok, err := client.Fetch(context.Background(), server.URL+"/api/documents/acme/blood_sample/token")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if tok.Data.DocumentDigest != "abc123" {
		t.Errorf("unexpected token %+v", tok)
	}
}

func TestClientFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	if _, err := client.Fetch(context.Background(), server.URL+"/missing"); err == nil {
		t.Fatal("expected error on 404")
	}
}

func TestRefFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(signedFixture())
	}))
	defer server.Close()

	fetcher := RefFetcher{Client: NewClient(server.URL, nil, nil)}
	info, err := fetcher.FetchToken(context.Background(), server.URL+"/token")
	if err != nil {
		t.Fatalf("FetchToken() error = %v", err)
	}
	if info.Digest != "abc123" || info.Algorithm != "SHA256" {
		t.Errorf("unexpected token info %+v", info)
	}
}
