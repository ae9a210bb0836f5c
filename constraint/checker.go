package constraint

import (
	"github.com/c360studio/provreg/prov"
	"github.com/c360studio/provreg/refcheck"
)

// Checker validates the CPM backbone rules of a single bundle.
type Checker struct{}

// NewChecker constructs a Checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Check runs the rules in order over the already-classified backbone sets
// and returns the first violation as a DocumentError, or nil when the
// bundle satisfies every rule. ownMeta is the meta-bundle id declared by
// the bundle's own main activity.
func (c *Checker) Check(b *prov.Bundle, forward, backward []*prov.Record, main *prov.Record, ownMeta prov.QualifiedName) error {
	idx := buildIndex(b, forward, backward, main)

	rules := []func(*index) error{
		checkLeakage,
		checkMainGeneration,
		checkMainUsage,
		checkForwardClosure,
		checkForwardDerivationTyping,
		checkForwardSpecialization,
		checkReceiverAttribution,
		checkBackwardClosure,
		checkBackwardDerivationTyping,
		checkSenderAttribution,
	}
	for _, rule := range rules {
		if err := rule(idx); err != nil {
			return err
		}
	}
	if err := checkBundleSelfReference(idx, b.ID); err != nil {
		return err
	}
	return checkMetaSelfReference(idx, ownMeta)
}

// index holds the per-check lookups over one bundle.
type index struct {
	bundle   *prov.Bundle
	forward  []*prov.Record
	backward []*prov.Record
	main     *prov.Record

	fwd      map[string]bool
	bwd      map[string]bool
	backbone map[string]bool
}

func buildIndex(b *prov.Bundle, forward, backward []*prov.Record, main *prov.Record) *index {
	idx := &index{
		bundle:   b,
		forward:  forward,
		backward: backward,
		main:     main,
		fwd:      make(map[string]bool),
		bwd:      make(map[string]bool),
		backbone: make(map[string]bool),
	}
	for _, f := range forward {
		idx.fwd[key(f.ID)] = true
		idx.backbone[key(f.ID)] = true
	}
	for _, bc := range backward {
		idx.bwd[key(bc.ID)] = true
		idx.backbone[key(bc.ID)] = true
	}
	if main != nil {
		idx.backbone[key(main.ID)] = true
	}
	// Agents attributed to a connector are backbone members.
	for _, rel := range b.RelationsOfKind(prov.Attribution) {
		if idx.fwd[key(rel.From)] || idx.bwd[key(rel.From)] {
			if agent := b.Record(rel.To); agent != nil && agent.Kind == prov.KindAgent {
				idx.backbone[key(agent.ID)] = true
			}
		}
	}
	return idx
}

func (idx *index) isConnector(id prov.QualifiedName) bool {
	return idx.fwd[key(id)] || idx.bwd[key(id)]
}

func (idx *index) isMain(id prov.QualifiedName) bool {
	return idx.main != nil && idx.main.ID.Equal(id)
}

// Rule 1: no relation may span the backbone and the domain content except
// the permitted anchoring edges. A connector specializing a domain entity
// is the one permitted spanning edge. Spanning edges whose connector
// endpoint is type-checked by a later rule (a connector's generation,
// derivation, or attribution) are left to that rule so its specific
// message surfaces.
func checkLeakage(idx *index) error {
	for _, rel := range idx.bundle.Relations() {
		fromBB := idx.backbone[key(rel.From)]
		toBB := idx.backbone[key(rel.To)]
		if fromBB == toBB {
			continue
		}
		switch rel.Kind {
		case prov.Specialization:
			if fromBB && idx.isConnector(rel.From) {
				continue
			}
		case prov.Generation:
			if idx.fwd[key(rel.From)] {
				continue
			}
		case prov.Derivation:
			if idx.isConnector(rel.From) || idx.isConnector(rel.To) {
				continue
			}
		case prov.Attribution:
			if idx.isConnector(rel.From) {
				continue
			}
		}
		return prov.Errorf(prov.ErrConstraint,
			"Unexpected relation between backbone and domain specific entity.")
	}
	return nil
}

// Rule 2: every entity generated by the main activity is a forward
// connector.
func checkMainGeneration(idx *index) error {
	for _, rel := range idx.bundle.RelationsOfKind(prov.Generation) {
		if idx.isMain(rel.To) && !idx.fwd[key(rel.From)] {
			return prov.Errorf(prov.ErrConstraint,
				"Main activity generated entity that is not forward connector")
		}
	}
	return nil
}

// Rule 3: every entity used by the main activity is a backward connector.
func checkMainUsage(idx *index) error {
	for _, rel := range idx.bundle.RelationsOfKind(prov.Usage) {
		if idx.isMain(rel.From) && !idx.bwd[key(rel.To)] {
			return prov.Errorf(prov.ErrConstraint,
				"Main activity used entity that is not backward connector")
		}
	}
	return nil
}

// Rule 4: each forward connector is either generated by exactly the main
// activity, or derived from exactly one other connector. Never both,
// never neither, never more than one edge of the chosen kind.
func checkForwardClosure(idx *index) error {
	for _, f := range idx.forward {
		var generations []*prov.Relation
		for _, rel := range idx.bundle.RelationsOfKind(prov.Generation) {
			if rel.From.Equal(f.ID) {
				generations = append(generations, rel)
			}
		}
		var derivations []*prov.Relation
		for _, rel := range idx.bundle.RelationsOfKind(prov.Derivation) {
			if rel.From.Equal(f.ID) {
				derivations = append(derivations, rel)
			}
		}

		if len(generations) == 1 && len(derivations) == 0 && !idx.isMain(generations[0].To) {
			return prov.Errorf(prov.ErrConstraint,
				"Forward connector [%s] generated by activity other than main one.", f.ID)
		}
		generated := len(generations) == 1 && len(derivations) == 0
		derived := len(generations) == 0 && len(derivations) == 1
		if !generated && !derived {
			return prov.Errorf(prov.ErrConstraint,
				"Forward connector [%s] has many generations or is missing one, or is not derived from other connector.", f.ID)
		}
	}
	// The local counts admit derivation cycles among forward connectors,
	// each member derived from the next with no generation anywhere. Walk
	// every chain to its root: a main-generated forward connector or a
	// backward connector.
	for _, f := range idx.forward {
		if err := walkForwardChain(idx, f); err != nil {
			return err
		}
	}
	return nil
}

// walkForwardChain follows a forward connector's derivation sources until
// the chain roots at a main-generated connector or leaves the forward set.
// Revisiting a connector means the chain is a closed cycle with no root.
func walkForwardChain(idx *index, f *prov.Record) error {
	seen := map[string]bool{}
	current := f.ID
	for {
		if seen[key(current)] {
			return prov.Errorf(prov.ErrConstraint,
				"Forward connector [%s] has many generations or is missing one, or is not derived from other connector.", f.ID)
		}
		seen[key(current)] = true
		if generatedByMain(idx, current) {
			return nil
		}
		source, ok := derivationSource(idx, current)
		if !ok || !idx.fwd[key(source)] {
			// Backward-connector sources terminate the chain; anything
			// else is rejected by the derivation typing rule.
			return nil
		}
		current = source
	}
}

// Rule 5: a forward connector's derivation source must itself be a
// connector.
func checkForwardDerivationTyping(idx *index) error {
	for _, f := range idx.forward {
		for _, rel := range idx.bundle.RelationsOfKind(prov.Derivation) {
			if rel.From.Equal(f.ID) && !idx.isConnector(rel.To) {
				return prov.Errorf(prov.ErrConstraint,
					"Forward connector [%s] derived from entity other than forward or backward connector.", f.ID)
			}
		}
	}
	return nil
}

// Rule 6: a concrete forward connector (one attributed to a receiver
// agent) must be specialized from exactly one other forward connector,
// the general one.
func checkForwardSpecialization(idx *index) error {
	for _, f := range idx.forward {
		if countAttributions(idx, f.ID) == 0 {
			continue
		}
		specs := 0
		for _, rel := range idx.bundle.RelationsOfKind(prov.Specialization) {
			if rel.From.Equal(f.ID) && idx.fwd[key(rel.To)] {
				specs++
			}
		}
		if specs != 1 {
			return prov.Errorf(prov.ErrConstraint,
				"Forward connector [%s] is not general one and not specialized from other forward connector.", f.ID)
		}
	}
	return nil
}

// Rule 7: a forward connector declared concrete by specializing another
// forward connector must be attributed to exactly one receiver agent.
func checkReceiverAttribution(idx *index) error {
	for _, f := range idx.forward {
		concrete := false
		for _, rel := range idx.bundle.RelationsOfKind(prov.Specialization) {
			if rel.From.Equal(f.ID) && idx.fwd[key(rel.To)] {
				concrete = true
				break
			}
		}
		if concrete && countAttributions(idx, f.ID) != 1 {
			return prov.Errorf(prov.ErrConstraint,
				"Receiver agent is not attributed to forward connector")
		}
	}
	return nil
}

// Rule 8: each backward connector's data is consumed exactly once: either
// used by the main activity, or derived from by exactly one other
// connector further down a redundancy chain.
func checkBackwardClosure(idx *index) error {
	for _, bc := range idx.backward {
		usages := 0
		for _, rel := range idx.bundle.RelationsOfKind(prov.Usage) {
			if rel.To.Equal(bc.ID) {
				usages++
			}
		}
		derivedFrom := 0
		for _, rel := range idx.bundle.RelationsOfKind(prov.Derivation) {
			if rel.To.Equal(bc.ID) {
				derivedFrom++
			}
		}
		if usages+derivedFrom != 1 {
			return prov.Errorf(prov.ErrConstraint,
				"Backward connector [%s] has many usages or is missing one or nothing was derived from it.", bc.ID)
		}
	}
	// The local counts admit derivation cycles among backward connectors,
	// each member consumed only by the next with no usage anywhere. Walk
	// every consumption chain to its end: a usage by main or a forward
	// connector picking the data up.
	for _, bc := range idx.backward {
		if err := walkBackwardChain(idx, bc); err != nil {
			return err
		}
	}
	return nil
}

// walkBackwardChain follows a backward connector's consumers until the
// chain ends at a main usage or leaves the backward set. Revisiting a
// connector means the chain is a closed cycle that never delivers.
func walkBackwardChain(idx *index, bc *prov.Record) error {
	seen := map[string]bool{}
	current := bc.ID
	for {
		if seen[key(current)] {
			return prov.Errorf(prov.ErrConstraint,
				"Backward connector [%s] has many usages or is missing one or nothing was derived from it.", bc.ID)
		}
		seen[key(current)] = true
		if usedByMain(idx, current) {
			return nil
		}
		consumer, ok := derivationConsumer(idx, current)
		if !ok || !idx.bwd[key(consumer)] {
			// Forward-connector consumers terminate the chain; anything
			// else is rejected by the derivation typing rule.
			return nil
		}
		current = consumer
	}
}

// Rule 9: a record derived from a backward connector must itself be a
// connector.
func checkBackwardDerivationTyping(idx *index) error {
	for _, bc := range idx.backward {
		for _, rel := range idx.bundle.RelationsOfKind(prov.Derivation) {
			if rel.To.Equal(bc.ID) && !idx.isConnector(rel.From) {
				return prov.Errorf(prov.ErrConstraint,
					"Backward connector is related to entity that is not connector by derivation")
			}
		}
	}
	return nil
}

// Rule 10: every backward connector is attributed to exactly one sender
// agent, and the agent record itself must be present in the bundle.
func checkSenderAttribution(idx *index) error {
	for _, bc := range idx.backward {
		var attributions []*prov.Relation
		for _, rel := range idx.bundle.RelationsOfKind(prov.Attribution) {
			if rel.From.Equal(bc.ID) {
				attributions = append(attributions, rel)
			}
		}
		if len(attributions) != 1 {
			return prov.Errorf(prov.ErrConstraint,
				"Sender agent is not attributed to backward connector")
		}
		agent := idx.bundle.Record(attributions[0].To)
		if agent == nil || agent.Kind != prov.KindAgent {
			return prov.Errorf(prov.ErrConstraint,
				"Backward connector does not have agent attributed")
		}
	}
	return nil
}

// Rule 11: no connector may reference the bundle being validated.
func checkBundleSelfReference(idx *index, ownBundle prov.QualifiedName) error {
	for _, conn := range append(append([]*prov.Record(nil), idx.forward...), idx.backward...) {
		ref, ok := refcheck.ExtractReference(conn)
		if !ok {
			continue
		}
		if ref.BundleID.Equal(ownBundle) {
			return prov.Errorf(prov.ErrConstraint,
				"Forward or backward connector references this bundle [%s].", ref.BundleID)
		}
	}
	return nil
}

// Rule 12: no connector may reference the meta-bundle declared by this
// bundle's own main activity.
func checkMetaSelfReference(idx *index, ownMeta prov.QualifiedName) error {
	if ownMeta.IsZero() {
		return nil
	}
	for _, conn := range append(append([]*prov.Record(nil), idx.forward...), idx.backward...) {
		ref, ok := refcheck.ExtractReference(conn)
		if !ok {
			continue
		}
		if ref.MetaBundleID.Equal(ownMeta) {
			return prov.Errorf(prov.ErrConstraint,
				"Forward or backward connector references this meta bundle [%s].", ref.MetaBundleID)
		}
	}
	return nil
}

func generatedByMain(idx *index, id prov.QualifiedName) bool {
	for _, rel := range idx.bundle.RelationsOfKind(prov.Generation) {
		if rel.From.Equal(id) && idx.isMain(rel.To) {
			return true
		}
	}
	return false
}

func usedByMain(idx *index, id prov.QualifiedName) bool {
	for _, rel := range idx.bundle.RelationsOfKind(prov.Usage) {
		if rel.To.Equal(id) && idx.isMain(rel.From) {
			return true
		}
	}
	return false
}

// derivationSource returns the entity id is derived from, if any.
func derivationSource(idx *index, id prov.QualifiedName) (prov.QualifiedName, bool) {
	for _, rel := range idx.bundle.RelationsOfKind(prov.Derivation) {
		if rel.From.Equal(id) {
			return rel.To, true
		}
	}
	return prov.QualifiedName{}, false
}

// derivationConsumer returns the entity derived from id, if any.
func derivationConsumer(idx *index, id prov.QualifiedName) (prov.QualifiedName, bool) {
	for _, rel := range idx.bundle.RelationsOfKind(prov.Derivation) {
		if rel.To.Equal(id) {
			return rel.From, true
		}
	}
	return prov.QualifiedName{}, false
}

func countAttributions(idx *index, id prov.QualifiedName) int {
	n := 0
	for _, rel := range idx.bundle.RelationsOfKind(prov.Attribution) {
		if rel.From.Equal(id) {
			n++
		}
	}
	return n
}

func key(id prov.QualifiedName) string {
	if id.Namespace.URI != "" {
		return id.URI()
	}
	return id.String()
}
