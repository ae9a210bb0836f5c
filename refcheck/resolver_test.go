package refcheck

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/c360studio/provreg/prov"
	"github.com/c360studio/provreg/vocabulary/cpm"
)

var (
	ownNS    = prov.Namespace{Prefix: "ex", URI: "http://registry.example.org/api/documents/acme/"}
	remoteNS = prov.Namespace{Prefix: "rem", URI: "http://other.example.org/api/documents/labx/"}
)

// fakeProber answers existence probes from a fixed set.
type fakeProber struct {
	exists map[string]bool
	calls  []string
}

func (p *fakeProber) Probe(_ context.Context, uri string) (bool, error) {
	p.calls = append(p.calls, uri)
	return p.exists[uri], nil
}

// fakeFetcher serves token digest material by token URI.
type fakeFetcher struct {
	tokens map[string]TokenInfo
}

func (f *fakeFetcher) FetchToken(_ context.Context, uri string) (TokenInfo, error) {
	info, ok := f.tokens[uri]
	if !ok {
		return TokenInfo{}, fmt.Errorf("no token at %s", uri)
	}
	return info, nil
}

// fakeIndex answers local existence queries.
type fakeIndex struct {
	documents map[string]bool
	metas     map[string]bool
}

func (i *fakeIndex) HasDocument(_ context.Context, key string) (bool, error) {
	return i.documents[key], nil
}

func (i *fakeIndex) HasMetaBundle(_ context.Context, key string) (bool, error) {
	return i.metas[key], nil
}

func testReference() Reference {
	return Reference{
		ConnectorID:  prov.Name(ownNS, "conn1"),
		BundleID:     prov.Name(remoteNS, "upstream"),
		MetaBundleID: prov.Name(remoteNS, "upstream_meta"),
		HashValue:    "abc123",
		HashAlg:      "SHA256",
	}
}

func newTestResolver(prober Prober, fetcher TokenFetcher, index LocalIndex) *Resolver {
	return NewResolver("registry.example.org", prober, fetcher, index, nil, time.Second, nil)
}

func TestExtractReference(t *testing.T) {
	conn := prov.NewRecord(prov.KindEntity, prov.Name(ownNS, "conn1"))
	conn.Attributes.Add(cpm.AttrReferencedBundleID, prov.NameValue(prov.Name(remoteNS, "upstream")))
	conn.Attributes.Add(cpm.AttrReferencedMetaBundleID, prov.NameValue(prov.Name(remoteNS, "upstream_meta")))
	conn.Attributes.Add(cpm.AttrReferencedBundleHashValue, prov.StringValue("abc123"))
	conn.Attributes.Add(cpm.AttrHashAlg, prov.StringValue("SHA256"))

	ref, ok := ExtractReference(conn)
	if !ok {
		t.Fatal("expected complete reference")
	}
	if ref.BundleID.Local != "upstream" || ref.HashValue != "abc123" || ref.HashAlg != "SHA256" {
		t.Errorf("unexpected reference %+v", ref)
	}
}

func TestExtractReferenceIncomplete(t *testing.T) {
	conn := prov.NewRecord(prov.KindEntity, prov.Name(ownNS, "conn1"))
	conn.Attributes.Add(cpm.AttrReferencedBundleID, prov.NameValue(prov.Name(remoteNS, "upstream")))

	if _, ok := ExtractReference(conn); ok {
		t.Error("reference with missing attributes must not extract")
	}
	if HasMandatoryAttributes(conn) {
		t.Error("HasMandatoryAttributes must fail on incomplete connector")
	}
}

func TestExtractReferenceRejectsLiteralIDs(t *testing.T) {
	conn := prov.NewRecord(prov.KindEntity, prov.Name(ownNS, "conn1"))
	conn.Attributes.Add(cpm.AttrReferencedBundleID, prov.StringValue("not-a-name"))
	conn.Attributes.Add(cpm.AttrReferencedMetaBundleID, prov.NameValue(prov.Name(remoteNS, "m")))
	conn.Attributes.Add(cpm.AttrReferencedBundleHashValue, prov.StringValue("abc"))
	conn.Attributes.Add(cpm.AttrHashAlg, prov.StringValue("SHA256"))

	if _, ok := ExtractReference(conn); ok {
		t.Error("string-literal bundle id must not extract")
	}
}

func TestResolveSelfBundleReference(t *testing.T) {
	r := newTestResolver(&fakeProber{}, &fakeFetcher{}, &fakeIndex{})
	ref := testReference()
	own := ref.BundleID

	_, err := r.Resolve(context.Background(), ref, own, prov.Name(ownNS, "meta"))
	assertMessage(t, err, "Forward or backward connector references this bundle [rem:upstream].")
}

func TestResolveSelfMetaReference(t *testing.T) {
	r := newTestResolver(&fakeProber{}, &fakeFetcher{}, &fakeIndex{})
	ref := testReference()
	ownMeta := ref.MetaBundleID

	_, err := r.Resolve(context.Background(), ref, prov.Name(ownNS, "bundle"), ownMeta)
	assertMessage(t, err, "Forward or backward connector references this meta bundle [rem:upstream_meta].")
}

func TestResolveRemoteBundleNotFound(t *testing.T) {
	ref := testReference()
	prober := &fakeProber{exists: map[string]bool{
		ref.MetaBundleID.URI(): true,
	}}
	r := newTestResolver(prober, &fakeFetcher{}, &fakeIndex{})

	_, err := r.Resolve(context.Background(), ref, prov.Name(ownNS, "bundle"), prov.Name(ownNS, "meta"))
	assertMessage(t, err, "Referenced bundle URI of connector [ex:conn1] not found.")
}

func TestResolveRemoteMetaNotFound(t *testing.T) {
	ref := testReference()
	prober := &fakeProber{exists: map[string]bool{
		ref.BundleID.URI(): true,
	}}
	r := newTestResolver(prober, &fakeFetcher{}, &fakeIndex{})

	_, err := r.Resolve(context.Background(), ref, prov.Name(ownNS, "bundle"), prov.Name(ownNS, "meta"))
	assertMessage(t, err, "Referenced meta bundle URI of connector [ex:conn1] not found.")
}

func TestResolveBundleFailureTakesPrecedence(t *testing.T) {
	// Both legs missing: the bundle message wins.
	ref := testReference()
	r := newTestResolver(&fakeProber{}, &fakeFetcher{}, &fakeIndex{})

	_, err := r.Resolve(context.Background(), ref, prov.Name(ownNS, "bundle"), prov.Name(ownNS, "meta"))
	assertMessage(t, err, "Referenced bundle URI of connector [ex:conn1] not found.")
}

func TestResolveHashMismatch(t *testing.T) {
	ref := testReference()
	prober := &fakeProber{exists: map[string]bool{
		ref.BundleID.URI():     true,
		ref.MetaBundleID.URI(): true,
	}}
	fetcher := &fakeFetcher{tokens: map[string]TokenInfo{
		TokenURI(ref.BundleID.URI()): {Digest: "something-else", Algorithm: "SHA256"},
	}}
	r := newTestResolver(prober, fetcher, &fakeIndex{})

	_, err := r.Resolve(context.Background(), ref, prov.Name(ownNS, "bundle"), prov.Name(ownNS, "meta"))
	assertMessage(t, err, "Hash of bundle [rem:upstream] has wrong value.")
}

func TestResolveHashAlgorithmCaseInsensitive(t *testing.T) {
	ref := testReference()
	ref.HashAlg = "sha256"
	prober := &fakeProber{exists: map[string]bool{
		ref.BundleID.URI():     true,
		ref.MetaBundleID.URI(): true,
	}}
	fetcher := &fakeFetcher{tokens: map[string]TokenInfo{
		TokenURI(ref.BundleID.URI()): {Digest: "abc123", Algorithm: "SHA256"},
	}}
	r := newTestResolver(prober, fetcher, &fakeIndex{})

	res, err := r.Resolve(context.Background(), ref, prov.Name(ownNS, "bundle"), prov.Name(ownNS, "meta"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.BundleFound || !res.MetaBundleFound || !res.HashOK {
		t.Errorf("expected full resolution, got %+v", res)
	}
}

func TestResolveLocalReference(t *testing.T) {
	// References on this node's own host consult storage, not the prober.
	ref := Reference{
		ConnectorID:  prov.Name(ownNS, "conn1"),
		BundleID:     prov.Name(ownNS, "stored_doc"),
		MetaBundleID: prov.Name(ownNS, "stored_meta"),
		HashValue:    "abc123",
		HashAlg:      "SHA256",
	}
	prober := &fakeProber{}
	index := &fakeIndex{
		documents: map[string]bool{"acme_stored_doc": true},
		metas:     map[string]bool{"stored_meta": true},
	}
	fetcher := &fakeFetcher{tokens: map[string]TokenInfo{
		TokenURI(ref.BundleID.URI()): {Digest: "abc123", Algorithm: "SHA256"},
	}}
	r := newTestResolver(prober, fetcher, index)

	res, err := r.Resolve(context.Background(), ref,
		prov.Name(ownNS, "other_bundle"), prov.Name(ownNS, "other_meta"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.BundleFound || !res.MetaBundleFound {
		t.Errorf("expected local hits, got %+v", res)
	}
	if len(prober.calls) != 0 {
		t.Errorf("local resolution must not probe remotely, probed %v", prober.calls)
	}
}

func TestResolveUnresolvableURI(t *testing.T) {
	ref := testReference()
	ref.BundleID = prov.QualifiedName{Local: "no_namespace"}
	r := newTestResolver(&fakeProber{}, &fakeFetcher{}, &fakeIndex{})

	_, err := r.Resolve(context.Background(), ref, prov.Name(ownNS, "bundle"), prov.Name(ownNS, "meta"))
	de, ok := prov.AsDocumentError(err)
	if !ok || de.Kind != prov.ErrUnresolvable {
		t.Fatalf("expected unresolvable error, got %v", err)
	}
}

func TestTokenURI(t *testing.T) {
	if got := TokenURI("http://x/api/documents/a/b"); got != "http://x/api/documents/a/b/token" {
		t.Errorf("unexpected token URI %q", got)
	}
	if got := TokenURI("http://x/api/documents/a/b/"); got != "http://x/api/documents/a/b/token" {
		t.Errorf("trailing slash not handled: %q", got)
	}
}

func assertMessage(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	de, ok := prov.AsDocumentError(err)
	if !ok {
		t.Fatalf("expected DocumentError, got %T: %v", err, err)
	}
	if de.Message != want {
		t.Errorf("message mismatch:\n got:  %q\n want: %q", de.Message, want)
	}
}
