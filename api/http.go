// Package api exposes the registry's HTTP surface: document store and
// retrieval, existence probes, token retrieval, backbone/domain sub-view
// export, and meta-bundle queries.
package api

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/provreg/backbone"
	"github.com/c360studio/provreg/graph"
	"github.com/c360studio/provreg/metaprov"
	"github.com/c360studio/provreg/pipeline"
	"github.com/c360studio/provreg/prov"
	"github.com/c360studio/provreg/storage"
	"github.com/c360studio/provreg/token"
)

// maxDocumentSize bounds request bodies (8MB).
const maxDocumentSize = 8 << 20

// hashAlgorithm is the digest algorithm the node stores and attests with.
const hashAlgorithm = "SHA256"

// Validator runs the validation pipeline over one submitted document.
type Validator interface {
	Validate(ctx context.Context, data []byte) (*pipeline.Accepted, error)
}

// TokenIssuer obtains a signed attestation from the trusted party.
type TokenIssuer interface {
	Issue(ctx context.Context, req token.IssueRequest) (*token.SignedToken, error)
}

// Folder records an accepted document in its meta-provenance bundle.
type Folder interface {
	Fold(ctx context.Context, req metaprov.FoldRequest) (metaprov.FoldResult, error)
}

// Store is the persistence surface the handler needs.
type Store interface {
	PutDocument(ctx context.Context, doc *storage.StoredDocument) error
	GetDocument(ctx context.Context, key string) (*storage.StoredDocument, error)
	PutToken(ctx context.Context, key string, tok *token.SignedToken) error
	GetToken(ctx context.Context, key string) (*token.SignedToken, error)
	GetMetaBundle(ctx context.Context, key string) (data []byte, revision uint64, err error)
}

// Handler handles HTTP requests for the provenance registry.
type Handler struct {
	validator  Validator
	issuer     TokenIssuer
	folder     Folder
	store      Store
	natsClient *natsclient.Client
	logger     *slog.Logger
}

// NewHandler creates the registry HTTP handler. natsClient may be nil to
// skip lineage publishing.
func NewHandler(validator Validator, issuer TokenIssuer, folder Folder, store Store, natsClient *natsclient.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		validator:  validator,
		issuer:     issuer,
		folder:     folder,
		store:      store,
		natsClient: natsClient,
		logger:     logger,
	}
}

// RegisterHTTPHandlers registers the registry routes on mux.
func (h *Handler) RegisterHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/documents/", h.handleDocuments)
	mux.HandleFunc("/api/meta/", h.handleMeta)
}

// StoreResponse is the JSON response for a stored document.
type StoreResponse struct {
	OrgID   string `json:"org_id"`
	Name    string `json:"name"`
	Version int64  `json:"version"`
	Digest  string `json:"digest"`
	HashAlg string `json:"hash_alg"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleDocuments dispatches /api/documents/{org}/{name}[/{view}].
func (h *Handler) handleDocuments(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	segments := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(segments) == 2:
		h.handleDocument(w, r, segments[0], segments[1])
	case len(segments) == 3:
		h.handleDocumentView(w, r, segments[0], segments[1], segments[2])
	default:
		writeJSONError(w, http.StatusNotFound, "not_found", "Unknown documents path")
	}
}

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request, orgID, name string) {
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		h.handleStore(w, r, orgID, name)
	case http.MethodHead:
		if _, err := h.store.GetDocument(r.Context(), storage.DocumentKey(orgID, name)); err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		doc, err := h.store.GetDocument(r.Context(), storage.DocumentKey(orgID, name))
		if err != nil {
			h.writeLookupError(w, err, "document")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc.Content)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

// handleStore validates, attests, persists, and folds one document.
// POST stores a new document; PUT stores an update.
func (h *Handler) handleStore(w http.ResponseWriter, r *http.Request, orgID, name string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "read_error", "Failed to read request body")
		return
	}

	key := storage.DocumentKey(orgID, name)
	_, lookupErr := h.store.GetDocument(r.Context(), key)
	exists := lookupErr == nil
	if r.Method == http.MethodPost && exists {
		writeJSONError(w, http.StatusConflict, "exists",
			fmt.Sprintf("Document [%s] already stored; use PUT to update", key))
		return
	}

	resp, err := h.StoreDocument(r.Context(), orgID, name, body)
	if err != nil {
		h.writeStoreError(w, key, err)
		return
	}

	status := http.StatusCreated
	if r.Method == http.MethodPut && exists {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// storeFailure tags a store-flow error with the stage that produced it.
type storeFailure struct {
	stage string
	err   error
}

func (f *storeFailure) Error() string { return f.err.Error() }
func (f *storeFailure) Unwrap() error { return f.err }

// StoreDocument runs the full accept flow for one document: validate,
// obtain a token from the trusted party, persist document and token, fold
// into meta-provenance, and publish the lineage event. Nothing is
// persisted unless validation reaches ACCEPTED.
func (h *Handler) StoreDocument(ctx context.Context, orgID, name string, body []byte) (StoreResponse, error) {
	key := storage.DocumentKey(orgID, name)

	accepted, err := h.validator.Validate(ctx, body)
	if err != nil {
		return StoreResponse{}, err
	}

	digest := sha256.Sum256(body)
	digestHex := hex.EncodeToString(digest[:])
	now := time.Now().UTC()

	tok, err := h.issuer.Issue(ctx, token.IssueRequest{
		OrganizationID: orgID,
		Document:       base64.StdEncoding.EncodeToString(body),
		DocumentFormat: "json",
		Type:           token.GraphTypeGraph,
		GraphID:        accepted.Bundle.ID.URI(),
		CreatedOn:      now.Format(time.RFC3339),
	})
	if err != nil {
		return StoreResponse{}, &storeFailure{stage: "token", err: fmt.Errorf("issue token for %s: %w", key, err)}
	}

	doc := &storage.StoredDocument{
		OrgID:   orgID,
		Name:    name,
		Format:  "json",
		Content: body,
		Digest:  digestHex,
		HashAlg: hashAlgorithm,
	}
	if err := h.store.PutDocument(ctx, doc); err != nil {
		return StoreResponse{}, &storeFailure{stage: "storage", err: fmt.Errorf("store document %s: %w", key, err)}
	}
	if err := h.store.PutToken(ctx, key, tok); err != nil {
		return StoreResponse{}, &storeFailure{stage: "storage", err: fmt.Errorf("store token %s: %w", key, err)}
	}

	result, err := h.folder.Fold(ctx, metaprov.FoldRequest{
		MetaBundleID: accepted.MetaBundleID,
		OrgID:        orgID,
		DocumentName: name,
		Token:        tok,
	})
	if err != nil {
		return StoreResponse{}, &storeFailure{stage: "fold", err: fmt.Errorf("fold %s into meta-provenance: %w", key, err)}
	}

	if err := graph.PublishFold(ctx, h.natsClient, accepted.MetaBundleID.Local, result); err != nil {
		// Lineage events are best effort; the document is already stored.
		h.logger.Warn("lineage publish failed", "key", key, "error", err)
	}

	return StoreResponse{
		OrgID:   orgID,
		Name:    name,
		Version: result.Version,
		Digest:  digestHex,
		HashAlg: hashAlgorithm,
	}, nil
}

// writeStoreError maps a StoreDocument failure to an HTTP response.
func (h *Handler) writeStoreError(w http.ResponseWriter, key string, err error) {
	var failure *storeFailure
	if errors.As(err, &failure) {
		h.logger.Error("document store flow failed", "key", key, "stage", failure.stage, "error", failure.err)
		switch failure.stage {
		case "token":
			writeJSONError(w, http.StatusBadGateway, "trusted_party_error", "Trusted party did not issue a token")
		case "fold":
			writeJSONError(w, http.StatusInternalServerError, "meta_provenance_error", "Failed to update meta-provenance")
		default:
			writeJSONError(w, http.StatusInternalServerError, "storage_error", "Failed to store document")
		}
		return
	}
	h.writeDocumentError(w, err)
}

// handleDocumentView serves /{org}/{name}/{token|backbone|domain}.
func (h *Handler) handleDocumentView(w http.ResponseWriter, r *http.Request, orgID, name, view string) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	key := storage.DocumentKey(orgID, name)

	if view == "token" {
		tok, err := h.store.GetToken(r.Context(), key)
		if err != nil {
			h.writeLookupError(w, err, "token")
			return
		}
		writeJSON(w, http.StatusOK, tok)
		return
	}

	if view != "backbone" && view != "domain" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Unknown document view")
		return
	}

	doc, err := h.store.GetDocument(r.Context(), key)
	if err != nil {
		h.writeLookupError(w, err, "document")
		return
	}
	sub, err := extractView(doc.Content, view)
	if err != nil {
		h.logger.Error("sub-view extraction failed", "key", key, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "view_error", "Failed to extract sub-view")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(sub)
}

// handleMeta serves /api/meta/{name}: HEAD for existence probes, GET for
// the meta-bundle graph.
func (h *Handler) handleMeta(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/meta/"), "/")
	if name == "" || strings.Contains(name, "/") {
		writeJSONError(w, http.StatusNotFound, "not_found", "Unknown meta path")
		return
	}

	data, _, err := h.store.GetMetaBundle(r.Context(), name)
	switch r.Method {
	case http.MethodHead:
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		if err != nil {
			h.writeLookupError(w, err, "meta-bundle")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

// extractView re-parses a stored document and returns its backbone or
// domain sub-bundle as PROV-JSON.
func extractView(content []byte, view string) ([]byte, error) {
	doc, err := prov.DecodeDocument(content)
	if err != nil {
		return nil, fmt.Errorf("decode stored document: %w", err)
	}
	if len(doc.Bundles) != 1 {
		return nil, fmt.Errorf("stored document has %d bundles", len(doc.Bundles))
	}
	bundle := doc.Bundles[0]

	classifier := backbone.NewClassifier(nil)
	forward, backward := classifier.Classify(bundle)
	var main *prov.Record
	if mains := backbone.MainActivities(bundle); len(mains) == 1 {
		main = mains[0]
	}

	backboneView, domainView := backbone.Split(bundle, forward, backward, main)
	if view == "backbone" {
		return prov.EncodeBundle(backboneView)
	}
	return prov.EncodeBundle(domainView)
}

// writeDocumentError maps a pipeline failure to an HTTP status. Client
// data faults are 400; references the validator cannot classify at all
// are 500.
func (h *Handler) writeDocumentError(w http.ResponseWriter, err error) {
	de, ok := prov.AsDocumentError(err)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	switch de.Kind {
	case prov.ErrUnresolvable:
		writeJSONError(w, http.StatusInternalServerError, string(de.Kind), de.Message)
	default:
		writeJSONError(w, http.StatusBadRequest, string(de.Kind), de.Message)
	}
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, storage.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "not_found", fmt.Sprintf("No such %s", what))
		return
	}
	h.logger.Error("storage lookup failed", "what", what, "error", err)
	writeJSONError(w, http.StatusInternalServerError, "storage_error", fmt.Sprintf("Failed to load %s", what))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
