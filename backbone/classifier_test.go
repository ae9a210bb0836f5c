package backbone

import (
	"testing"

	"github.com/c360studio/provreg/prov"
	"github.com/c360studio/provreg/vocabulary/cpm"
)

var testNS = prov.Namespace{Prefix: "ex", URI: "http://registry.example.org/api/documents/acme/"}

func entityWithType(b *prov.Bundle, local string, typ prov.QualifiedName) *prov.Record {
	e := prov.NewRecord(prov.KindEntity, prov.Name(testNS, local))
	if !typ.IsZero() {
		e.Attributes.Add(prov.AttrType, prov.NameValue(typ))
	}
	b.AddRecord(e)
	return e
}

func mainActivity(b *prov.Bundle, local string) *prov.Record {
	a := prov.NewRecord(prov.KindActivity, prov.Name(testNS, local))
	a.Attributes.Add(prov.AttrType, prov.NameValue(cpm.TypeMainActivity))
	b.AddRecord(a)
	return a
}

func TestClassifyByType(t *testing.T) {
	b := prov.NewBundle(prov.Name(testNS, "bundle"))
	fwd := entityWithType(b, "fwd", cpm.TypeForwardConnector)
	bwd := entityWithType(b, "bwd", cpm.TypeBackwardConnector)
	entityWithType(b, "domain", prov.QualifiedName{})

	forward, backward := NewClassifier(nil).Classify(b)

	if len(forward) != 1 || !forward[0].ID.Equal(fwd.ID) {
		t.Errorf("expected forward connector [fwd], got %v", forward)
	}
	if len(backward) != 1 || !backward[0].ID.Equal(bwd.ID) {
		t.Errorf("expected backward connector [bwd], got %v", backward)
	}
}

func TestClassifyDoubleTypedReportsForward(t *testing.T) {
	b := prov.NewBundle(prov.Name(testNS, "bundle"))
	e := entityWithType(b, "both", cpm.TypeForwardConnector)
	e.Attributes.Add(prov.AttrType, prov.NameValue(cpm.TypeBackwardConnector))

	forward, backward := NewClassifier(nil).Classify(b)
	if len(forward) != 1 || len(backward) != 0 {
		t.Errorf("double-typed entity must classify as forward only, got %d/%d", len(forward), len(backward))
	}
}

func TestClassifyNoConnectors(t *testing.T) {
	b := prov.NewBundle(prov.Name(testNS, "bundle"))
	entityWithType(b, "plain", prov.QualifiedName{})

	forward, backward := NewClassifier(nil).Classify(b)
	if len(forward) != 0 || len(backward) != 0 {
		t.Error("bundle without connectors must yield empty slices")
	}
}

func TestStructuralStrategyRequiresBackboneContact(t *testing.T) {
	b := prov.NewBundle(prov.Name(testNS, "bundle"))
	main := mainActivity(b, "main")
	anchored := entityWithType(b, "anchored", cpm.TypeForwardConnector)
	entityWithType(b, "floating", cpm.TypeForwardConnector)
	b.AddRelation(prov.NewRelation(prov.Generation, anchored.ID, main.ID))

	forward, _ := NewClassifier(StructuralStrategy{}).Classify(b)
	if len(forward) != 1 || !forward[0].ID.Equal(anchored.ID) {
		t.Errorf("structural strategy must keep only backbone-touching connectors, got %v", forward)
	}
}

func TestStructuralStrategyDerivationChain(t *testing.T) {
	b := prov.NewBundle(prov.Name(testNS, "bundle"))
	upstream := entityWithType(b, "upstream", cpm.TypeBackwardConnector)
	derived := entityWithType(b, "derived", cpm.TypeForwardConnector)
	b.AddRelation(prov.NewRelation(prov.Derivation, derived.ID, upstream.ID))

	forward, backward := NewClassifier(StructuralStrategy{}).Classify(b)
	if len(forward) != 1 {
		t.Errorf("connector on a derivation chain with a typed connector must classify, got %v", forward)
	}
	if len(backward) != 1 {
		t.Errorf("derivation chain works in both directions, got %v", backward)
	}
}

func TestMainActivities(t *testing.T) {
	b := prov.NewBundle(prov.Name(testNS, "bundle"))
	mainActivity(b, "main")
	other := prov.NewRecord(prov.KindActivity, prov.Name(testNS, "other"))
	b.AddRecord(other)

	mains := MainActivities(b)
	if len(mains) != 1 || mains[0].ID.Local != "main" {
		t.Errorf("expected exactly the typed main activity, got %v", mains)
	}
}
