package backbone

import (
	"testing"

	"github.com/c360studio/provreg/prov"
	"github.com/c360studio/provreg/vocabulary/cpm"
)

// buildSplitBundle assembles a bundle with a full backbone plus domain
// content hanging off the backward connector by specialization.
func buildSplitBundle(t *testing.T) (*prov.Bundle, []*prov.Record, []*prov.Record, *prov.Record) {
	t.Helper()
	b := prov.NewBundle(prov.Name(testNS, "bundle"))
	b.AddNamespace(testNS)

	main := mainActivity(b, "main")
	fwd := entityWithType(b, "fwd", cpm.TypeForwardConnector)
	bwd := entityWithType(b, "bwd", cpm.TypeBackwardConnector)
	domain := entityWithType(b, "specimen", prov.QualifiedName{})
	sender := prov.NewRecord(prov.KindAgent, prov.Name(testNS, "sender"))
	sender.Attributes.Add(prov.AttrType, prov.NameValue(cpm.TypeSenderAgent))
	b.AddRecord(sender)

	b.AddRelation(prov.NewRelation(prov.Generation, fwd.ID, main.ID))
	b.AddRelation(prov.NewRelation(prov.Usage, main.ID, bwd.ID))
	b.AddRelation(prov.NewRelation(prov.Attribution, bwd.ID, sender.ID))
	// Connector anchored into domain content.
	b.AddRelation(prov.NewRelation(prov.Specialization, bwd.ID, domain.ID))
	// Pure domain edge.
	b.AddRelation(prov.NewRelation(prov.Generation, domain.ID, main.ID))

	forward, backward := NewClassifier(nil).Classify(b)
	return b, forward, backward, main
}

func TestSplitMembership(t *testing.T) {
	b, forward, backward, main := buildSplitBundle(t)

	backboneView, domainView := Split(b, forward, backward, main)

	for _, local := range []string{"main", "fwd", "bwd", "sender"} {
		if backboneView.Record(prov.Name(testNS, local)) == nil {
			t.Errorf("backbone view missing %s", local)
		}
	}
	if backboneView.Record(prov.Name(testNS, "specimen")) != nil {
		t.Error("domain entity leaked into backbone view")
	}
	if domainView.Record(prov.Name(testNS, "specimen")) == nil {
		t.Error("domain view missing domain entity")
	}

	// Every record lands in exactly one view.
	total := len(backboneView.Records()) + len(domainView.Records())
	if total != len(b.Records()) {
		t.Errorf("views hold %d records, bundle has %d", total, len(b.Records()))
	}
}

func TestSplitRelations(t *testing.T) {
	b, forward, backward, main := buildSplitBundle(t)

	backboneView, domainView := Split(b, forward, backward, main)

	// Generation fwd->main and usage main->bwd and attribution bwd->sender
	// are backbone edges.
	if got := len(backboneView.Relations()); got != 3 {
		t.Errorf("expected 3 backbone relations, got %d", got)
	}
	// The connector's specialization of a domain entity stays in the
	// domain view, as does the purely domain generation.
	if got := len(domainView.Relations()); got != 2 {
		t.Errorf("expected 2 domain relations, got %d", got)
	}

	for _, rel := range backboneView.Relations() {
		if rel.To.Local == "specimen" || rel.From.Local == "specimen" {
			t.Error("relation touching domain entity leaked into backbone view")
		}
	}
}

func TestSplitSharesNamespacesAndID(t *testing.T) {
	b, forward, backward, main := buildSplitBundle(t)
	backboneView, domainView := Split(b, forward, backward, main)

	if !backboneView.ID.Equal(b.ID) || !domainView.ID.Equal(b.ID) {
		t.Error("views must carry the parent bundle identifier")
	}
	if len(backboneView.Namespaces) != len(b.Namespaces) || len(domainView.Namespaces) != len(b.Namespaces) {
		t.Error("views must carry the parent namespaces")
	}
}
