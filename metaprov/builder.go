package metaprov

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/provreg/prov"
	"github.com/c360studio/provreg/storage"
	"github.com/c360studio/provreg/token"
	"github.com/c360studio/provreg/vocabulary/cpm"
)

// maxFoldAttempts bounds the compare-and-set retry loop.
const maxFoldAttempts = 5

var versionSuffixRe = regexp.MustCompile(`_v\d+$`)

// MetaStore is the storage the builder folds into. storage.Store
// satisfies it.
type MetaStore interface {
	GetMetaBundle(ctx context.Context, key string) (data []byte, revision uint64, err error)
	PutMetaBundle(ctx context.Context, key string, data []byte, revision uint64) error
}

// FoldRequest describes one accepted document to fold.
type FoldRequest struct {
	MetaBundleID prov.QualifiedName
	OrgID        string
	DocumentName string
	Token        *token.SignedToken
}

// FoldResult reports what the fold created.
type FoldResult struct {
	Version    int64
	GeneralID  prov.QualifiedName
	ConcreteID prov.QualifiedName
}

// Builder folds accepted documents into their meta-provenance bundles.
type Builder struct {
	store  MetaStore
	logger *slog.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(store MetaStore, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: store, logger: logger}
}

// Fold records a newly accepted document version in its meta-bundle:
// look up or create the general document entity, attach a concrete
// version entity specialized from it, link it to the previous version by
// a prov:revisionOf derivation, and attach the token. The whole mutation
// is one compare-and-set write, retried on conflict.
func (b *Builder) Fold(ctx context.Context, req FoldRequest) (FoldResult, error) {
	key := req.MetaBundleID.Local

	for attempt := 1; attempt <= maxFoldAttempts; attempt++ {
		bundle, revision, err := b.load(ctx, key, req.MetaBundleID)
		if err != nil {
			return FoldResult{}, err
		}

		result := apply(bundle, req)

		data, err := prov.EncodeBundle(bundle)
		if err != nil {
			return FoldResult{}, fmt.Errorf("encode meta-bundle %s: %w", key, err)
		}
		err = b.store.PutMetaBundle(ctx, key, data, revision)
		if err == nil {
			b.logger.Info("meta-provenance updated",
				"meta_bundle", key,
				"general", result.GeneralID.String(),
				"version", result.Version)
			return result, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return FoldResult{}, fmt.Errorf("store meta-bundle %s: %w", key, err)
		}
		b.logger.Debug("meta-provenance fold lost a race, retrying",
			"meta_bundle", key, "attempt", attempt)
	}
	return FoldResult{}, fmt.Errorf("fold into meta-bundle %s: %w after %d attempts", key, storage.ErrConflict, maxFoldAttempts)
}

func (b *Builder) load(ctx context.Context, key string, id prov.QualifiedName) (*prov.Bundle, uint64, error) {
	data, revision, err := b.store.GetMetaBundle(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		bundle := prov.NewBundle(id)
		bundle.AddNamespace(id.Namespace)
		bundle.AddNamespace(cpm.Namespace)
		bundle.AddNamespace(cpm.ProvNamespace)
		bundle.AddNamespace(cpm.PavNamespace)
		return bundle, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load meta-bundle %s: %w", key, err)
	}
	bundle, err := prov.DecodeBundle(id, data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode meta-bundle %s: %w", key, err)
	}
	return bundle, revision, nil
}

// apply mutates the in-memory meta-bundle. Pure graph construction; the
// caller owns persistence.
func apply(bundle *prov.Bundle, req FoldRequest) FoldResult {
	ns := req.MetaBundleID.Namespace

	generalLocal := storage.DocumentKey(req.OrgID, GeneralName(req.DocumentName))
	generalID := prov.Name(ns, generalLocal)
	general := bundle.Record(generalID)
	if general == nil {
		general = prov.NewRecord(prov.KindEntity, generalID)
		general.Attributes.Add(prov.AttrType, prov.NameValue(cpm.TypeBundle))
		bundle.AddRecord(general)
	}

	previous, maxVersion := latestVersion(bundle, generalID)
	version := maxVersion + 1

	concreteID := prov.Name(ns, fmt.Sprintf("%s_v%d", generalLocal, version))
	concrete := prov.NewRecord(prov.KindEntity, concreteID)
	concrete.Attributes.Add(prov.AttrType, prov.NameValue(cpm.TypeBundle))
	concrete.Attributes.Add(cpm.AttrVersion, prov.IntValue(version))
	bundle.AddRecord(concrete)
	bundle.AddRelation(prov.NewRelation(prov.Specialization, concreteID, generalID))

	if previous != nil {
		revision := prov.NewRelation(prov.Derivation, concreteID, previous.ID)
		revision.Attributes.Add(prov.AttrType, prov.NameValue(cpm.TypeRevisionOf))
		bundle.AddRelation(revision)
	}

	attachToken(bundle, concreteID, req)

	return FoldResult{Version: version, GeneralID: generalID, ConcreteID: concreteID}
}

// latestVersion finds the concrete version entity with the highest
// pav:version among the specializations of general.
func latestVersion(bundle *prov.Bundle, general prov.QualifiedName) (*prov.Record, int64) {
	var latest *prov.Record
	var max int64
	for _, rel := range bundle.RelationsOfKind(prov.Specialization) {
		if !rel.To.Equal(general) {
			continue
		}
		concrete := bundle.Record(rel.From)
		if concrete == nil {
			continue
		}
		v, ok := concrete.Attributes.First(cpm.AttrVersion)
		if !ok || v.Kind != prov.ValueInt {
			continue
		}
		if v.Int > max {
			max = v.Int
			latest = concrete
		}
	}
	return latest, max
}

// attachToken adds the token entity, the synthetic token-generation
// activity, and the trusted-party agent with their linking relations.
func attachToken(bundle *prov.Bundle, concreteID prov.QualifiedName, req FoldRequest) {
	if req.Token == nil {
		return
	}
	ns := req.MetaBundleID.Namespace
	data := req.Token.Data

	tokenID := prov.Name(ns, concreteID.Local+"_token")
	tok := prov.NewRecord(prov.KindEntity, tokenID)
	tok.Attributes.Add(cpm.AttrOriginatorID, prov.StringValue(data.OriginatorID))
	tok.Attributes.Add(cpm.AttrAuthorityID, prov.StringValue(data.AuthorityID))
	tok.Attributes.Add(cpm.AttrTokenTimestamp, prov.StringValue(data.TokenTimestamp))
	tok.Attributes.Add(cpm.AttrDocumentCreationTime, prov.StringValue(data.DocumentCreationTimestamp))
	tok.Attributes.Add(cpm.AttrDocumentDigest, prov.StringValue(data.DocumentDigest))
	tok.Attributes.Add(cpm.AttrBundleURI, prov.StringValue(data.AdditionalData.Bundle))
	tok.Attributes.Add(cpm.AttrHashFunction, prov.StringValue(data.AdditionalData.HashFunction))
	tok.Attributes.Add(cpm.AttrTrustedPartyURI, prov.StringValue(data.AdditionalData.TrustedPartyURI))
	tok.Attributes.Add(cpm.AttrTrustedPartyCert, prov.StringValue(data.AdditionalData.TrustedPartyCertificate))
	tok.Attributes.Add(cpm.AttrSignature, prov.StringValue(req.Token.Signature))
	bundle.AddRecord(tok)

	agentID := prov.Name(ns, "trusted_party_"+data.AuthorityID)
	if bundle.Record(agentID) == nil {
		bundle.AddRecord(prov.NewRecord(prov.KindAgent, agentID))
	}

	activityID := prov.Name(ns, "tokenGeneration_"+uuid.New().String())
	activity := prov.NewRecord(prov.KindActivity, activityID)
	now := time.Now().UTC()
	activity.StartTime = &now
	activity.EndTime = &now
	bundle.AddRecord(activity)

	bundle.AddRelation(prov.NewRelation(prov.Generation, tokenID, activityID))
	bundle.AddRelation(prov.NewRelation(prov.Usage, activityID, concreteID))
	bundle.AddRelation(prov.NewRelation(prov.Association, activityID, agentID))
	bundle.AddRelation(prov.NewRelation(prov.Attribution, tokenID, agentID))
}

// GeneralName strips a trailing version suffix ("_v<N>") from a document
// name, yielding the logical document identity.
func GeneralName(documentName string) string {
	return versionSuffixRe.ReplaceAllString(documentName, "")
}
