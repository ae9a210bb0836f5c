package backbone

import (
	"github.com/c360studio/provreg/prov"
)

// Split separates a bundle into its backbone and domain-specific sub-views.
// The backbone holds the main activity, the connectors, the agents
// attributed to connectors, and the Generation/Usage/Derivation/
// Specialization/Attribution relations linking those records to each other.
// Everything else lands in the domain view. Both views share the parent's
// namespaces and carry the parent's identifier.
func Split(b *prov.Bundle, forward, backward []*prov.Record, main *prov.Record) (backboneView, domainView *prov.Bundle) {
	backboneIDs := make(map[string]bool)
	mark := func(id prov.QualifiedName) {
		backboneIDs[key(id)] = true
	}

	if main != nil {
		mark(main.ID)
	}
	for _, c := range forward {
		mark(c.ID)
	}
	for _, c := range backward {
		mark(c.ID)
	}

	// Agents attributed to a connector belong to the backbone.
	for _, rel := range b.RelationsOfKind(prov.Attribution) {
		if backboneIDs[key(rel.From)] {
			if agent := b.Record(rel.To); agent != nil && agent.Kind == prov.KindAgent {
				mark(agent.ID)
			}
		}
	}

	backboneView = prov.NewBundle(b.ID)
	domainView = prov.NewBundle(b.ID)
	for _, ns := range b.Namespaces {
		backboneView.AddNamespace(ns)
		domainView.AddNamespace(ns)
	}

	for _, r := range b.Records() {
		if backboneIDs[key(r.ID)] {
			backboneView.AddRecord(r)
		} else {
			domainView.AddRecord(r)
		}
	}

	for _, rel := range b.Relations() {
		if isBackboneRelation(rel, backboneIDs) {
			backboneView.AddRelation(rel)
		} else {
			domainView.AddRelation(rel)
		}
	}

	return backboneView, domainView
}

// isBackboneRelation reports whether rel links backbone records through one
// of the backbone relation kinds. A connector's specialization of a domain
// entity stays in the domain view; only edges with both endpoints on the
// backbone are backbone edges.
func isBackboneRelation(rel *prov.Relation, backboneIDs map[string]bool) bool {
	switch rel.Kind {
	case prov.Generation, prov.Usage, prov.Derivation, prov.Specialization, prov.Attribution:
		return backboneIDs[key(rel.From)] && backboneIDs[key(rel.To)]
	default:
		return false
	}
}

func key(id prov.QualifiedName) string {
	if id.Namespace.URI != "" {
		return id.URI()
	}
	return id.String()
}
