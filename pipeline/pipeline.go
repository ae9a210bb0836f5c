package pipeline

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/c360studio/provreg/backbone"
	"github.com/c360studio/provreg/constraint"
	"github.com/c360studio/provreg/prov"
	"github.com/c360studio/provreg/refcheck"
	"github.com/c360studio/provreg/vocabulary/cpm"
)

// State names the pipeline stages.
type State string

// Pipeline states.
const (
	StateReceived           State = "RECEIVED"
	StateParsed             State = "PARSED"
	StateStructurallyValid  State = "STRUCTURALLY_VALID"
	StateReferencesVerified State = "REFERENCES_VERIFIED"
	StateCPMValid           State = "CPM_VALID"
	StateNamespacesValid    State = "NAMESPACES_VALID"
	StateAccepted           State = "ACCEPTED"
	StateRejected           State = "REJECTED"
)

// NormalizationCheck is the optional full PROV-constraints hook run as the
// final stage. The default accepts everything.
type NormalizationCheck func(b *prov.Bundle) error

// ReferenceResolver resolves one connector reference.
type ReferenceResolver interface {
	Resolve(ctx context.Context, ref refcheck.Reference, ownBundle, ownMeta prov.QualifiedName) (refcheck.Resolution, error)
}

// Accepted is the outcome of a successful validation: the parsed bundle
// with its classified backbone, from which the backbone and
// domain-specific sub-views are extractable.
type Accepted struct {
	Document     *prov.Document
	Bundle       *prov.Bundle
	Forward      []*prov.Record
	Backward     []*prov.Record
	MainActivity *prov.Record
	MetaBundleID prov.QualifiedName
}

// Backbone returns the CPM scaffolding sub-view of the accepted bundle.
func (a *Accepted) Backbone() *prov.Bundle {
	view, _ := backbone.Split(a.Bundle, a.Forward, a.Backward, a.MainActivity)
	return view
}

// DomainSpecific returns the domain content sub-view of the accepted
// bundle.
func (a *Accepted) DomainSpecific() *prov.Bundle {
	_, view := backbone.Split(a.Bundle, a.Forward, a.Backward, a.MainActivity)
	return view
}

// Pipeline validates incoming documents.
type Pipeline struct {
	ownHost    string
	classifier *backbone.Classifier
	resolver   ReferenceResolver
	checker    *constraint.Checker
	normalize  NormalizationCheck
	logger     *slog.Logger
}

// New builds a pipeline. ownHost is this node's authority (host[:port]),
// used to confirm the node owns the meta-bundle's claimed storage host.
// normalize may be nil for the no-op strategy.
func New(ownHost string, classifier *backbone.Classifier, resolver ReferenceResolver, checker *constraint.Checker, normalize NormalizationCheck, logger *slog.Logger) *Pipeline {
	if classifier == nil {
		classifier = backbone.NewClassifier(nil)
	}
	if checker == nil {
		checker = constraint.NewChecker()
	}
	if normalize == nil {
		normalize = func(*prov.Bundle) error { return nil }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		ownHost:    ownHost,
		classifier: classifier,
		resolver:   resolver,
		checker:    checker,
		normalize:  normalize,
		logger:     logger,
	}
}

// Validate runs the full chain over one submitted document. On success it
// returns the accepted view; on failure, a DocumentError whose message is
// surfaced verbatim to the client.
func (p *Pipeline) Validate(ctx context.Context, data []byte) (*Accepted, error) {
	accepted, stage, err := p.run(ctx, data)
	if err != nil {
		validationsTotal.WithLabelValues("rejected", string(stage)).Inc()
		p.logger.Info("document rejected", "stage", stage, "reason", err.Error())
		return nil, err
	}
	validationsTotal.WithLabelValues("accepted", string(StateAccepted)).Inc()
	return accepted, nil
}

func (p *Pipeline) run(ctx context.Context, data []byte) (*Accepted, State, error) {
	// RECEIVED → PARSED
	doc, err := prov.DecodeDocument(data)
	if err != nil {
		return nil, StateParsed, prov.Errorf(prov.ErrParse, "Document could not be parsed: %v", err)
	}

	// PARSED → STRUCTURALLY_VALID
	accepted, err := p.checkStructure(doc)
	if err != nil {
		return nil, StateStructurallyValid, err
	}

	// STRUCTURALLY_VALID → REFERENCES_VERIFIED
	if err := p.verifyReferences(ctx, accepted); err != nil {
		return nil, StateReferencesVerified, err
	}

	// REFERENCES_VERIFIED → CPM_VALID
	if err := p.checker.Check(accepted.Bundle, accepted.Forward, accepted.Backward, accepted.MainActivity, accepted.MetaBundleID); err != nil {
		return nil, StateCPMValid, err
	}

	// CPM_VALID → NAMESPACES_VALID
	if err := checkNamespaces(accepted.Document, accepted.Bundle); err != nil {
		return nil, StateNamespacesValid, err
	}

	// NAMESPACES_VALID → ACCEPTED
	if err := p.normalize(accepted.Bundle); err != nil {
		if _, ok := prov.AsDocumentError(err); ok {
			return nil, StateAccepted, err
		}
		return nil, StateAccepted, prov.Errorf(prov.ErrStructure, "Document failed normalization check: %v", err)
	}

	return accepted, StateAccepted, nil
}

func (p *Pipeline) checkStructure(doc *prov.Document) (*Accepted, error) {
	if len(doc.Bundles) == 0 {
		return nil, prov.Errorf(prov.ErrStructure, "Document has no bundles.")
	}
	if len(doc.Bundles) > 1 {
		return nil, prov.Errorf(prov.ErrStructure, "Document has too many bundles.")
	}
	bundle := doc.Bundles[0]

	mains := backbone.MainActivities(bundle)
	switch {
	case len(mains) == 0:
		return nil, prov.Errorf(prov.ErrStructure,
			"No 'mainActivity' activity specified inside of bundle [%s]", bundle.ID.Local)
	case len(mains) > 1:
		return nil, prov.Errorf(prov.ErrStructure,
			"Multiple 'mainActivity' activities specified inside of bundle [%s]", bundle.ID.Local)
	}
	main := mains[0]

	metaVal, ok := main.Attributes.First(cpm.AttrReferencedMetaBundleID)
	if !ok || metaVal.Kind != prov.ValueName {
		return nil, prov.Errorf(prov.ErrStructure,
			"Main activity missing required attribute 'cpm:referencedMetaBundleId'.")
	}
	metaID := metaVal.Name

	forward, backward := p.classifier.Classify(bundle)
	for _, conn := range forward {
		if !refcheck.HasMandatoryAttributes(conn) {
			return nil, prov.Errorf(prov.ErrStructure,
				"Forward connector(s) is/are missing mandatory attributes.")
		}
	}
	for _, conn := range backward {
		if !refcheck.HasMandatoryAttributes(conn) {
			return nil, prov.Errorf(prov.ErrStructure,
				"Backward connector(s) is/are missing mandatory attributes.")
		}
	}

	// The bundle's own URI must resolve, and this node must own the
	// meta-bundle's claimed storage host. A document pointing its meta
	// bundle at another node was submitted to the wrong registry.
	if _, err := parseAuthority(bundle.ID.URI()); err != nil {
		return nil, prov.Errorf(prov.ErrUnresolvable,
			"Bundle id [%s] is not a resolvable URI.", bundle.ID)
	}
	metaHost, err := parseAuthority(metaID.URI())
	if err != nil {
		return nil, prov.Errorf(prov.ErrUnresolvable,
			"Meta bundle id [%s] is not a resolvable URI.", metaID)
	}
	if metaHost != p.ownHost {
		return nil, prov.Errorf(prov.ErrUnresolvable,
			"Meta bundle [%s] is not stored on this node.", metaID)
	}

	return &Accepted{
		Document:     doc,
		Bundle:       bundle,
		Forward:      forward,
		Backward:     backward,
		MainActivity: main,
		MetaBundleID: metaID,
	}, nil
}

// verifyReferences resolves every connector concurrently. The first
// failing connector in classification order determines the reported
// error, keeping messages deterministic under concurrency.
func (p *Pipeline) verifyReferences(ctx context.Context, a *Accepted) error {
	connectors := append(append([]*prov.Record(nil), a.Forward...), a.Backward...)
	if len(connectors) == 0 {
		return nil
	}

	errs := make([]error, len(connectors))
	attempted := make([]bool, len(connectors))
	var wg sync.WaitGroup
	for i, conn := range connectors {
		ref, ok := refcheck.ExtractReference(conn)
		if !ok {
			// Attribute completeness was enforced structurally.
			continue
		}
		attempted[i] = true
		wg.Add(1)
		go func(i int, ref refcheck.Reference) {
			defer wg.Done()
			_, err := p.resolver.Resolve(ctx, ref, a.Bundle.ID, a.MetaBundleID)
			errs[i] = err
		}(i, ref)
	}
	wg.Wait()

	var first error
	for i, err := range errs {
		if !attempted[i] {
			continue
		}
		if err != nil {
			connectorResolutionsTotal.WithLabelValues("failed").Inc()
			if first == nil {
				first = err
			}
			continue
		}
		connectorResolutionsTotal.WithLabelValues("resolved").Inc()
	}
	return first
}

// checkNamespaces enforces the namespace validity stage: every entity and
// agent identifier carries an explicit namespace, and every declared
// namespace URI ends in a separator. Document-level prefixes bind record
// identifiers inside the bundle, so they are held to the same rule as the
// bundle's own declarations.
func checkNamespaces(doc *prov.Document, b *prov.Bundle) error {
	declared := append(append([]prov.Namespace(nil), doc.Namespaces...), b.Namespaces...)
	for _, ns := range declared {
		if !ns.Valid() {
			return prov.Errorf(prov.ErrNamespace,
				"Namespace [%s] URI [%s] must end with '/' or '#'.", ns.Prefix, ns.URI)
		}
	}
	for _, r := range b.Records() {
		if r.Kind == prov.KindActivity {
			continue
		}
		if r.ID.Namespace.URI == "" {
			return prov.Errorf(prov.ErrNamespace,
				"Identifier [%s] has no explicit namespace.", r.ID)
		}
	}
	return nil
}

func parseAuthority(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", prov.Errorf(prov.ErrUnresolvable, "URI [%s] has no authority.", uri)
	}
	return u.Host, nil
}
