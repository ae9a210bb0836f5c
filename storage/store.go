// Package storage provides the node's persisted indexes on NATS JetStream
// KV: stored provenance documents, meta-provenance bundles, and issued
// tokens. Meta-bundle writes go through revision-checked compare-and-set,
// which is the serialization boundary the meta-provenance builder relies
// on for version monotonicity.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/provreg/token"
)

// Bucket names for each index.
const (
	BucketDocuments   = "PROVREG_DOCUMENTS"
	BucketMetaBundles = "PROVREG_METABUNDLES"
	BucketTokens      = "PROVREG_TOKENS"
)

// DocumentKey composes the storage key for an ordinary document.
// Collaborator lookups depend on this exact composite form.
func DocumentKey(orgID, name string) string {
	return orgID + "_" + name
}

// StoredDocument is a persisted, accepted provenance document.
type StoredDocument struct {
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	Format    string    `json:"format"`
	Content   []byte    `json:"content"`
	Digest    string    `json:"digest"`
	HashAlg   string    `json:"hash_alg"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store provides index operations backed by NATS KV.
type Store struct {
	documents jetstream.KeyValue
	meta      jetstream.KeyValue
	tokens    jetstream.KeyValue
}

// NewStore creates a Store with the given JetStream context, creating the
// KV buckets if they don't exist.
func NewStore(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	documents, err := getOrCreateBucket(ctx, js, BucketDocuments)
	if err != nil {
		return nil, fmt.Errorf("create documents bucket: %w", err)
	}
	meta, err := getOrCreateBucket(ctx, js, BucketMetaBundles)
	if err != nil {
		return nil, fmt.Errorf("create meta-bundles bucket: %w", err)
	}
	tokens, err := getOrCreateBucket(ctx, js, BucketTokens)
	if err != nil {
		return nil, fmt.Errorf("create tokens bucket: %w", err)
	}
	return &Store{documents: documents, meta: meta, tokens: tokens}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Provreg %s index", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// PutDocument stores or replaces a document under its composite key.
func (s *Store) PutDocument(ctx context.Context, doc *StoredDocument) error {
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if _, err := s.documents.Put(ctx, DocumentKey(doc.OrgID, doc.Name), data); err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by its composite key.
func (s *Store) GetDocument(ctx context.Context, key string) (*StoredDocument, error) {
	entry, err := s.documents.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	var doc StoredDocument
	if err := json.Unmarshal(entry.Value(), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return &doc, nil
}

// HasDocument implements the resolver's local index for documents.
func (s *Store) HasDocument(ctx context.Context, key string) (bool, error) {
	_, err := s.documents.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("probe document: %w", err)
	}
	return true, nil
}

// HasMetaBundle implements the resolver's local index for meta-bundles.
func (s *Store) HasMetaBundle(ctx context.Context, key string) (bool, error) {
	_, err := s.meta.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("probe meta-bundle: %w", err)
	}
	return true, nil
}

// GetMetaBundle retrieves a meta-bundle's serialized graph and its
// revision for a subsequent compare-and-set update. A missing key returns
// ErrNotFound with revision zero.
func (s *Store) GetMetaBundle(ctx context.Context, key string) (data []byte, revision uint64, err error) {
	entry, err := s.meta.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("get meta-bundle: %w", err)
	}
	return entry.Value(), entry.Revision(), nil
}

// PutMetaBundle writes a meta-bundle with optimistic concurrency.
// revision zero creates the key and fails with ErrConflict if it already
// exists; a non-zero revision updates and fails with ErrConflict when the
// stored revision moved.
func (s *Store) PutMetaBundle(ctx context.Context, key string, data []byte, revision uint64) error {
	var err error
	if revision == 0 {
		_, err = s.meta.Create(ctx, key, data)
	} else {
		_, err = s.meta.Update(ctx, key, data, revision)
	}
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) || isWrongRevision(err) {
			return ErrConflict
		}
		return fmt.Errorf("store meta-bundle: %w", err)
	}
	return nil
}

// PutToken stores the issued token for a document.
func (s *Store) PutToken(ctx context.Context, key string, tok *token.SignedToken) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if _, err := s.tokens.Put(ctx, key, data); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// GetToken retrieves the token issued for a document.
func (s *Store) GetToken(ctx context.Context, key string) (*token.SignedToken, error) {
	entry, err := s.tokens.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	var tok token.SignedToken
	if err := json.Unmarshal(entry.Value(), &tok); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return &tok, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound)
}

func isWrongRevision(err error) bool {
	// The KV API reports a lost CAS race as a wrong-last-sequence stream
	// error.
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return false
}
