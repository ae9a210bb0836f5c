package backbone

import (
	"github.com/c360studio/provreg/prov"
	"github.com/c360studio/provreg/vocabulary/cpm"
)

// Strategy decides whether an entity plays a connector role. The default
// matches declared prov:type values; alternative strategies may add
// structural requirements (for example, reachability from domain content
// only through backbone-typed relations).
type Strategy interface {
	IsForwardConnector(b *prov.Bundle, e *prov.Record) bool
	IsBackwardConnector(b *prov.Bundle, e *prov.Record) bool
}

// TypeStrategy classifies by declared prov:type alone.
type TypeStrategy struct{}

// IsForwardConnector reports whether e carries cpm:ForwardConnector.
func (TypeStrategy) IsForwardConnector(_ *prov.Bundle, e *prov.Record) bool {
	return e.HasType(cpm.TypeForwardConnector)
}

// IsBackwardConnector reports whether e carries cpm:BackwardConnector.
func (TypeStrategy) IsBackwardConnector(_ *prov.Bundle, e *prov.Record) bool {
	return e.HasType(cpm.TypeBackwardConnector)
}

// StructuralStrategy classifies by declared type and additionally requires
// the entity to touch the backbone: it must be generated or used by the
// main activity, or sit on a derivation chain with another typed connector.
type StructuralStrategy struct{}

// IsForwardConnector implements Strategy.
func (StructuralStrategy) IsForwardConnector(b *prov.Bundle, e *prov.Record) bool {
	return e.HasType(cpm.TypeForwardConnector) && touchesBackbone(b, e)
}

// IsBackwardConnector implements Strategy.
func (StructuralStrategy) IsBackwardConnector(b *prov.Bundle, e *prov.Record) bool {
	return e.HasType(cpm.TypeBackwardConnector) && touchesBackbone(b, e)
}

func touchesBackbone(b *prov.Bundle, e *prov.Record) bool {
	for _, rel := range b.Relations() {
		switch rel.Kind {
		case prov.Generation:
			if rel.From.Equal(e.ID) && isMainActivity(b, rel.To) {
				return true
			}
		case prov.Usage:
			if rel.To.Equal(e.ID) && isMainActivity(b, rel.From) {
				return true
			}
		case prov.Derivation:
			if rel.From.Equal(e.ID) && isTypedConnector(b, rel.To) {
				return true
			}
			if rel.To.Equal(e.ID) && isTypedConnector(b, rel.From) {
				return true
			}
		case prov.Specialization:
			if rel.From.Equal(e.ID) && isTypedConnector(b, rel.To) {
				return true
			}
		}
	}
	return false
}

func isMainActivity(b *prov.Bundle, id prov.QualifiedName) bool {
	r := b.Record(id)
	return r != nil && r.Kind == prov.KindActivity && r.HasType(cpm.TypeMainActivity)
}

func isTypedConnector(b *prov.Bundle, id prov.QualifiedName) bool {
	r := b.Record(id)
	return r != nil && (r.HasType(cpm.TypeForwardConnector) || r.HasType(cpm.TypeBackwardConnector))
}

// Classifier partitions bundle entities into connector roles.
type Classifier struct {
	strategy Strategy
}

// NewClassifier builds a classifier; a nil strategy defaults to
// TypeStrategy.
func NewClassifier(strategy Strategy) *Classifier {
	if strategy == nil {
		strategy = TypeStrategy{}
	}
	return &Classifier{strategy: strategy}
}

// Classify returns the forward and backward connectors of the bundle.
// It has no side effects and never fails: a bundle without connectors
// yields two empty slices. The two slices are disjoint; an entity typed
// both ways is reported as forward (the constraint checker rejects such
// bundles later).
func (c *Classifier) Classify(b *prov.Bundle) (forward, backward []*prov.Record) {
	for _, e := range b.Entities() {
		switch {
		case c.strategy.IsForwardConnector(b, e):
			forward = append(forward, e)
		case c.strategy.IsBackwardConnector(b, e):
			backward = append(backward, e)
		}
	}
	return forward, backward
}

// MainActivities returns every activity typed cpm:mainActivity. Cardinality
// enforcement (exactly one) belongs to the validation pipeline.
func MainActivities(b *prov.Bundle) []*prov.Record {
	var out []*prov.Record
	for _, a := range b.Activities() {
		if a.HasType(cpm.TypeMainActivity) {
			out = append(out, a)
		}
	}
	return out
}
