package refcheck

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/c360studio/provreg/prov"
)

// Prober checks whether a remote URI exists. Implementations issue an HTTP
// HEAD-equivalent; any 2xx status means "exists". Errors and timeouts are
// treated as "not found" by the resolver, never surfaced.
type Prober interface {
	Probe(ctx context.Context, uri string) (bool, error)
}

// TokenInfo is the digest material of a previously issued token, fetched
// from the referenced bundle's storage endpoint.
type TokenInfo struct {
	Digest    string
	Algorithm string
}

// TokenFetcher retrieves the token of a stored bundle by URI.
type TokenFetcher interface {
	FetchToken(ctx context.Context, uri string) (TokenInfo, error)
}

// LocalIndex answers existence queries against this node's own storage.
// Keys are the composite storage keys: "{org}_{name}" for documents and
// the bare local name for meta-bundles.
type LocalIndex interface {
	HasDocument(ctx context.Context, key string) (bool, error)
	HasMetaBundle(ctx context.Context, key string) (bool, error)
}

// Resolution reports the outcome of resolving one connector.
type Resolution struct {
	BundleFound     bool
	MetaBundleFound bool
	HashOK          bool
}

// Resolver resolves connector references and verifies claimed hashes.
type Resolver struct {
	ownHost string
	prober  Prober
	fetcher TokenFetcher
	index   LocalIndex
	cache   *ProbeCache
	timeout time.Duration
	logger  *slog.Logger
}

// NewResolver constructs a resolver. ownHost is this node's authority
// (host[:port]) used to decide local vs remote resolution. cache may be
// nil to disable probe caching.
func NewResolver(ownHost string, prober Prober, fetcher TokenFetcher, index LocalIndex, cache *ProbeCache, timeout time.Duration, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		ownHost: ownHost,
		prober:  prober,
		fetcher: fetcher,
		index:   index,
		cache:   cache,
		timeout: timeout,
		logger:  logger,
	}
}

// Resolve checks one connector reference. ownBundle and ownMeta identify
// the bundle currently under validation and its declared meta-bundle;
// a connector referencing either is rejected outright, before any
// existence check (a not-yet-saved self reference would otherwise surface
// as a misleading "not found").
//
// On failure the returned error is a DocumentError carrying the
// contractual message; the Resolution reports which legs succeeded.
func (r *Resolver) Resolve(ctx context.Context, ref Reference, ownBundle, ownMeta prov.QualifiedName) (Resolution, error) {
	var res Resolution

	if ref.BundleID.Equal(ownBundle) {
		return res, prov.Errorf(prov.ErrConstraint,
			"Forward or backward connector references this bundle [%s].", ref.BundleID)
	}
	if !ownMeta.IsZero() && ref.MetaBundleID.Equal(ownMeta) {
		return res, prov.Errorf(prov.ErrConstraint,
			"Forward or backward connector references this meta bundle [%s].", ref.MetaBundleID)
	}

	bundleURI := ref.BundleID.URI()
	metaURI := ref.MetaBundleID.URI()

	bundleURL, err := url.Parse(bundleURI)
	if err != nil || bundleURL.Host == "" {
		return res, prov.Errorf(prov.ErrUnresolvable,
			"Referenced bundle id [%s] of connector [%s] is not a resolvable URI.", ref.BundleID, ref.ConnectorID)
	}
	metaURL, err := url.Parse(metaURI)
	if err != nil || metaURL.Host == "" {
		return res, prov.Errorf(prov.ErrUnresolvable,
			"Referenced meta bundle id [%s] of connector [%s] is not a resolvable URI.", ref.MetaBundleID, ref.ConnectorID)
	}

	// The two existence legs are independent reads; dispatch both and join.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res.BundleFound = r.bundleExists(ctx, bundleURL, bundleURI)
	}()
	go func() {
		defer wg.Done()
		res.MetaBundleFound = r.metaBundleExists(ctx, metaURL, metaURI)
	}()
	wg.Wait()

	// Bundle check order precedes meta-bundle check: the first failure wins.
	if !res.BundleFound {
		return res, prov.Errorf(prov.ErrReference,
			"Referenced bundle URI of connector [%s] not found.", ref.ConnectorID)
	}
	if !res.MetaBundleFound {
		return res, prov.Errorf(prov.ErrReference,
			"Referenced meta bundle URI of connector [%s] not found.", ref.ConnectorID)
	}

	ok, err := r.verifyHash(ctx, ref, bundleURI)
	if err != nil {
		return res, err
	}
	res.HashOK = ok
	if !ok {
		return res, prov.Errorf(prov.ErrReference,
			"Hash of bundle [%s] has wrong value.", ref.BundleID)
	}
	return res, nil
}

func (r *Resolver) bundleExists(ctx context.Context, u *url.URL, uri string) bool {
	if u.Host == r.ownHost {
		key, ok := documentKeyFromURL(u)
		if !ok {
			return false
		}
		exists, err := r.index.HasDocument(ctx, key)
		if err != nil {
			r.logger.Warn("local document lookup failed", "key", key, "error", err)
			return false
		}
		return exists
	}
	return r.probe(ctx, uri)
}

func (r *Resolver) metaBundleExists(ctx context.Context, u *url.URL, uri string) bool {
	if u.Host == r.ownHost {
		key := lastSegment(u.Path)
		exists, err := r.index.HasMetaBundle(ctx, key)
		if err != nil {
			r.logger.Warn("local meta-bundle lookup failed", "key", key, "error", err)
			return false
		}
		return exists
	}
	return r.probe(ctx, uri)
}

// probe checks remote existence, consulting the positive-result cache
// first. Probe failures and timeouts count as "not found" and are never
// cached.
func (r *Resolver) probe(ctx context.Context, uri string) bool {
	if r.cache != nil {
		if exists, ok := r.cache.Get(ctx, uri); ok {
			return exists
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	exists, err := r.prober.Probe(probeCtx, uri)
	if err != nil {
		r.logger.Debug("existence probe failed", "uri", uri, "error", err)
		return false
	}
	if exists && r.cache != nil {
		r.cache.Put(ctx, uri)
	}
	return exists
}

// verifyHash fetches the referenced bundle's issued token and compares
// digest and algorithm against the connector's claim. The digest compares
// exactly; the algorithm name compares case-insensitively.
func (r *Resolver) verifyHash(ctx context.Context, ref Reference, bundleURI string) (bool, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	info, err := r.fetcher.FetchToken(fetchCtx, TokenURI(bundleURI))
	if err != nil {
		r.logger.Debug("token fetch failed", "uri", bundleURI, "error", err)
		return false, prov.Errorf(prov.ErrReference,
			"Hash of bundle [%s] has wrong value.", ref.BundleID)
	}
	return info.Digest == ref.HashValue &&
		strings.EqualFold(info.Algorithm, ref.HashAlg), nil
}

// TokenURI derives a stored bundle's token endpoint from its URI.
func TokenURI(bundleURI string) string {
	return strings.TrimSuffix(bundleURI, "/") + "/token"
}

// documentKeyFromURL composes the local document index key
// "{org}_{name}" from a bundle URI path of the form
// .../documents/{org}/{name}.
func documentKeyFromURL(u *url.URL) (string, bool) {
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 {
		return "", false
	}
	org := segments[len(segments)-2]
	name := segments[len(segments)-1]
	if org == "" || name == "" {
		return "", false
	}
	return org + "_" + name, true
}

func lastSegment(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	return segments[len(segments)-1]
}
