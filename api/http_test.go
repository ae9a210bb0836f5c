package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/provreg/metaprov"
	"github.com/c360studio/provreg/pipeline"
	"github.com/c360studio/provreg/prov"
	"github.com/c360studio/provreg/storage"
	"github.com/c360studio/provreg/token"
	"github.com/c360studio/provreg/vocabulary/cpm"
)

var (
	docNS  = prov.Namespace{Prefix: "ex", URI: "http://registry.example.org/api/documents/acme/"}
	metaNS = prov.Namespace{Prefix: "meta", URI: "http://registry.example.org/api/meta/"}
)

type fakeValidator struct {
	accepted *pipeline.Accepted
	err      error
}

func (f *fakeValidator) Validate(context.Context, []byte) (*pipeline.Accepted, error) {
	return f.accepted, f.err
}

type fakeIssuer struct {
	tok      *token.SignedToken
	err      error
	requests []token.IssueRequest
}

func (f *fakeIssuer) Issue(_ context.Context, req token.IssueRequest) (*token.SignedToken, error) {
	f.requests = append(f.requests, req)
	return f.tok, f.err
}

type fakeFolder struct {
	result   metaprov.FoldResult
	err      error
	requests []metaprov.FoldRequest
}

func (f *fakeFolder) Fold(_ context.Context, req metaprov.FoldRequest) (metaprov.FoldResult, error) {
	f.requests = append(f.requests, req)
	return f.result, f.err
}

type fakeStore struct {
	documents map[string]*storage.StoredDocument
	tokens    map[string]*token.SignedToken
	metas     map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		documents: map[string]*storage.StoredDocument{},
		tokens:    map[string]*token.SignedToken{},
		metas:     map[string][]byte{},
	}
}

func (s *fakeStore) PutDocument(_ context.Context, doc *storage.StoredDocument) error {
	s.documents[storage.DocumentKey(doc.OrgID, doc.Name)] = doc
	return nil
}

func (s *fakeStore) GetDocument(_ context.Context, key string) (*storage.StoredDocument, error) {
	doc, ok := s.documents[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return doc, nil
}

func (s *fakeStore) PutToken(_ context.Context, key string, tok *token.SignedToken) error {
	s.tokens[key] = tok
	return nil
}

func (s *fakeStore) GetToken(_ context.Context, key string) (*token.SignedToken, error) {
	tok, ok := s.tokens[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return tok, nil
}

func (s *fakeStore) GetMetaBundle(_ context.Context, key string) ([]byte, uint64, error) {
	data, ok := s.metas[key]
	if !ok {
		return nil, 0, storage.ErrNotFound
	}
	return data, 1, nil
}

// fixture bundles the handler with its fakes so tests can inspect them.
type fixture struct {
	handler   *Handler
	validator *fakeValidator
	issuer    *fakeIssuer
	folder    *fakeFolder
	store     *fakeStore
	mux       *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	accepted := acceptedFixture(t)
	f := &fixture{
		validator: &fakeValidator{accepted: accepted},
		issuer: &fakeIssuer{tok: &token.SignedToken{
			Data:      token.TokenData{AuthorityID: "mpa", DocumentDigest: "abc123"},
			Signature: "sig-bytes",
		}},
		folder: &fakeFolder{result: metaprov.FoldResult{
			Version:    1,
			GeneralID:  prov.Name(metaNS, "acme_blood_sample"),
			ConcreteID: prov.Name(metaNS, "acme_blood_sample_v1"),
		}},
		store: newFakeStore(),
	}
	f.handler = NewHandler(f.validator, f.issuer, f.folder, f.store, nil, nil)
	f.mux = http.NewServeMux()
	f.handler.RegisterHTTPHandlers(f.mux)
	return f
}

func (f *fixture) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

// sampleDocument builds a small valid bundle with a backbone and one
// domain entity, serialized as PROV-JSON.
func sampleDocument(t *testing.T) []byte {
	t.Helper()
	b := prov.NewBundle(prov.Name(docNS, "blood_sample"))
	b.AddNamespace(docNS)
	b.AddNamespace(metaNS)
	b.AddNamespace(cpm.Namespace)

	main := prov.NewRecord(prov.KindActivity, prov.Name(docNS, "main"))
	main.Attributes.Add(prov.AttrType, prov.NameValue(cpm.TypeMainActivity))
	main.Attributes.Add(cpm.AttrReferencedMetaBundleID, prov.NameValue(prov.Name(metaNS, "bundle_meta")))
	b.AddRecord(main)

	fwd := prov.NewRecord(prov.KindEntity, prov.Name(docNS, "fwd"))
	fwd.Attributes.Add(prov.AttrType, prov.NameValue(cpm.TypeForwardConnector))
	b.AddRecord(fwd)

	specimen := prov.NewRecord(prov.KindEntity, prov.Name(docNS, "specimen"))
	b.AddRecord(specimen)

	b.AddRelation(prov.NewRelation(prov.Generation, fwd.ID, main.ID))
	b.AddRelation(prov.NewRelation(prov.Generation, specimen.ID, main.ID))

	data, err := prov.EncodeDocument(&prov.Document{Bundles: []*prov.Bundle{b}})
	require.NoError(t, err)
	return data
}

func acceptedFixture(t *testing.T) *pipeline.Accepted {
	t.Helper()
	doc, err := prov.DecodeDocument(sampleDocument(t))
	require.NoError(t, err)
	bundle := doc.Bundles[0]
	return &pipeline.Accepted{
		Document:     doc,
		Bundle:       bundle,
		MainActivity: bundle.Record(prov.Name(docNS, "main")),
		Forward:      []*prov.Record{bundle.Record(prov.Name(docNS, "fwd"))},
		MetaBundleID: prov.Name(metaNS, "bundle_meta"),
	}
}

func TestStoreDocumentCreated(t *testing.T) {
	f := newFixture(t)
	body := sampleDocument(t)

	rec := f.do(http.MethodPost, "/api/documents/acme/blood_sample", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp StoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "acme", resp.OrgID)
	assert.Equal(t, "blood_sample", resp.Name)
	assert.Equal(t, int64(1), resp.Version)
	digest := sha256.Sum256(body)
	assert.Equal(t, hex.EncodeToString(digest[:]), resp.Digest)
	assert.Equal(t, "SHA256", resp.HashAlg)

	stored, ok := f.store.documents["acme_blood_sample"]
	require.True(t, ok, "document must be persisted")
	assert.Equal(t, body, stored.Content)
	assert.Contains(t, f.store.tokens, "acme_blood_sample")

	require.Len(t, f.issuer.requests, 1)
	issue := f.issuer.requests[0]
	assert.Equal(t, "acme", issue.OrganizationID)
	assert.Equal(t, token.GraphTypeGraph, issue.Type)
	assert.Equal(t, "http://registry.example.org/api/documents/acme/blood_sample", issue.GraphID)

	require.Len(t, f.folder.requests, 1)
	fold := f.folder.requests[0]
	assert.Equal(t, "bundle_meta", fold.MetaBundleID.Local)
	assert.Equal(t, "blood_sample", fold.DocumentName)
	assert.Same(t, f.issuer.tok, fold.Token)
}

func TestStoreDocumentRejected(t *testing.T) {
	f := newFixture(t)
	f.validator.err = prov.Errorf(prov.ErrConstraint, "Main activity used entity that is not backward connector")

	rec := f.do(http.MethodPost, "/api/documents/acme/blood_sample", []byte("{}"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "constraint", resp.Error)
	assert.Equal(t, "Main activity used entity that is not backward connector", resp.Message)
	assert.Empty(t, f.store.documents, "rejected documents must not be persisted")
}

func TestStoreDocumentUnresolvable(t *testing.T) {
	f := newFixture(t)
	f.validator.err = prov.Errorf(prov.ErrUnresolvable, "Meta bundle [meta:bundle_meta] is not stored on this node.")

	rec := f.do(http.MethodPost, "/api/documents/acme/blood_sample", []byte("{}"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStorePostConflict(t *testing.T) {
	f := newFixture(t)
	f.store.documents["acme_blood_sample"] = &storage.StoredDocument{OrgID: "acme", Name: "blood_sample"}

	rec := f.do(http.MethodPost, "/api/documents/acme/blood_sample", sampleDocument(t))
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Document [acme_blood_sample] already stored; use PUT to update", resp.Message)
}

func TestStorePutUpdates(t *testing.T) {
	f := newFixture(t)
	f.store.documents["acme_blood_sample"] = &storage.StoredDocument{OrgID: "acme", Name: "blood_sample"}

	rec := f.do(http.MethodPut, "/api/documents/acme/blood_sample", sampleDocument(t))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStorePutCreatesWhenMissing(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPut, "/api/documents/acme/blood_sample", sampleDocument(t))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestStoreTrustedPartyFailure(t *testing.T) {
	f := newFixture(t)
	f.issuer.tok = nil
	f.issuer.err = errors.New("connection refused")

	rec := f.do(http.MethodPost, "/api/documents/acme/blood_sample", sampleDocument(t))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "trusted_party_error", resp.Error)
	assert.Empty(t, f.store.documents, "documents must not persist without a token")
}

func TestStoreFoldFailure(t *testing.T) {
	f := newFixture(t)
	f.folder.err = errors.New("kv unavailable")

	rec := f.do(http.MethodPost, "/api/documents/acme/blood_sample", sampleDocument(t))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "meta_provenance_error", resp.Error)
}

func TestGetDocument(t *testing.T) {
	f := newFixture(t)
	content := sampleDocument(t)
	f.store.documents["acme_blood_sample"] = &storage.StoredDocument{
		OrgID: "acme", Name: "blood_sample", Content: content,
	}

	rec := f.do(http.MethodGet, "/api/documents/acme/blood_sample", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, content, rec.Body.Bytes())
}

func TestGetDocumentNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/documents/acme/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHeadDocument(t *testing.T) {
	f := newFixture(t)
	f.store.documents["acme_blood_sample"] = &storage.StoredDocument{OrgID: "acme", Name: "blood_sample"}

	assert.Equal(t, http.StatusOK, f.do(http.MethodHead, "/api/documents/acme/blood_sample", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodHead, "/api/documents/acme/missing", nil).Code)
}

func TestGetTokenView(t *testing.T) {
	f := newFixture(t)
	f.store.tokens["acme_blood_sample"] = &token.SignedToken{Signature: "sig-bytes"}

	rec := f.do(http.MethodGet, "/api/documents/acme/blood_sample/token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var tok token.SignedToken
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	assert.Equal(t, "sig-bytes", tok.Signature)
}

func TestSubViews(t *testing.T) {
	f := newFixture(t)
	f.store.documents["acme_blood_sample"] = &storage.StoredDocument{
		OrgID: "acme", Name: "blood_sample", Content: sampleDocument(t),
	}

	rec := f.do(http.MethodGet, "/api/documents/acme/blood_sample/backbone", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, entityIDs(t, rec.Body.Bytes()), "ex:fwd")
	assert.NotContains(t, entityIDs(t, rec.Body.Bytes()), "ex:specimen")

	rec = f.do(http.MethodGet, "/api/documents/acme/blood_sample/domain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, entityIDs(t, rec.Body.Bytes()), "ex:specimen")
	assert.NotContains(t, entityIDs(t, rec.Body.Bytes()), "ex:fwd")
}

func TestUnknownView(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/documents/acme/blood_sample/sideways", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetaBundle(t *testing.T) {
	f := newFixture(t)
	f.store.metas["bundle_meta"] = []byte(`{"entity": {}}`)

	assert.Equal(t, http.StatusOK, f.do(http.MethodHead, "/api/meta/bundle_meta", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodHead, "/api/meta/missing", nil).Code)

	rec := f.do(http.MethodGet, "/api/meta/bundle_meta", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entity": {}}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/meta/missing", nil).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodDelete, "/api/documents/acme/blood_sample", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodDelete, "/api/meta/bundle_meta", nil).Code)
}

// entityIDs lists the entity section keys of an encoded bundle body.
func entityIDs(t *testing.T, body []byte) []string {
	t.Helper()
	var sections map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &sections))
	var entities map[string]json.RawMessage
	if raw, ok := sections["entity"]; ok {
		require.NoError(t, json.Unmarshal(raw, &entities))
	}
	ids := make([]string, 0, len(entities))
	for id := range entities {
		ids = append(ids, id)
	}
	return ids
}
