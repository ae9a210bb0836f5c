package prov

import "time"

// RelationKind identifies the PROV relation variant. The set is closed:
// a relation outside this enumeration cannot be represented, which keeps
// classifier and checker matching exhaustive.
type RelationKind string

// Relation kinds, named by their PROV-JSON property.
const (
	Generation     RelationKind = "wasGeneratedBy"
	Usage          RelationKind = "used"
	Derivation     RelationKind = "wasDerivedFrom"
	Specialization RelationKind = "specializationOf"
	Attribution    RelationKind = "wasAttributedTo"
	Association    RelationKind = "wasAssociatedWith"
	Alternate      RelationKind = "alternateOf"
	Communication  RelationKind = "wasInformedBy"
	Start          RelationKind = "wasStartedBy"
	End            RelationKind = "wasEndedBy"
	Invalidation   RelationKind = "wasInvalidatedBy"
	Membership     RelationKind = "hadMember"
	Delegation     RelationKind = "actedOnBehalfOf"
	Influence      RelationKind = "wasInfluencedBy"
)

// RelationKinds lists every kind, in a stable order.
var RelationKinds = []RelationKind{
	Generation, Usage, Derivation, Specialization, Attribution,
	Association, Alternate, Communication, Start, End,
	Invalidation, Membership, Delegation, Influence,
}

// Relation links two records, with optional extra participants.
// Directionality follows PROV:
//
//	Generation:     From = generated entity, To = activity
//	Usage:          From = activity,         To = used entity
//	Derivation:     From = generated,        To = used
//	Specialization: From = specific,         To = general
//	Attribution:    From = entity,           To = agent
//	Association:    From = activity,         To = agent
//	Delegation:     From = delegate,         To = responsible
//	Communication:  From = informed,         To = informant
//	Membership:     From = collection,       To = member
type Relation struct {
	Kind       RelationKind
	ID         QualifiedName // optional
	From       QualifiedName
	To         QualifiedName
	Extra      []QualifiedName // third to fifth participants, if declared
	Time       *time.Time
	Attributes Attributes
}

// NewRelation constructs a relation with an empty attribute map.
func NewRelation(kind RelationKind, from, to QualifiedName) *Relation {
	return &Relation{Kind: kind, From: from, To: to, Attributes: make(Attributes)}
}

// Equal reports structural equality over kind, endpoints, extra
// participants, and attribute multiset. The relation's own identifier is
// compared only when both sides carry one.
func (r *Relation) Equal(other *Relation) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Kind != other.Kind || !r.From.Equal(other.From) || !r.To.Equal(other.To) {
		return false
	}
	if !r.ID.IsZero() && !other.ID.IsZero() && !r.ID.Equal(other.ID) {
		return false
	}
	if len(r.Extra) != len(other.Extra) {
		return false
	}
	for i := range r.Extra {
		if !r.Extra[i].Equal(other.Extra[i]) {
			return false
		}
	}
	return r.Attributes.Equal(other.Attributes) && sameTime(r.Time, other.Time)
}
