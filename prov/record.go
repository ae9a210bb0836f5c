package prov

import "time"

// RecordKind identifies the PROV record variant.
type RecordKind string

// Record kinds.
const (
	KindEntity   RecordKind = "entity"
	KindActivity RecordKind = "activity"
	KindAgent    RecordKind = "agent"
)

// Record is an Entity, Activity, or Agent. Identity is the qualified
// identifier; equality compares identifier plus attribute multiset.
type Record struct {
	Kind       RecordKind
	ID         QualifiedName
	Attributes Attributes

	// StartTime and EndTime are set on activities only.
	StartTime *time.Time
	EndTime   *time.Time
}

// NewRecord constructs a record with an empty attribute map.
func NewRecord(kind RecordKind, id QualifiedName) *Record {
	return &Record{Kind: kind, ID: id, Attributes: make(Attributes)}
}

// HasType reports whether the record carries the given prov:type value.
func (r *Record) HasType(typ QualifiedName) bool {
	return r.Attributes.HasName(AttrType, typ)
}

// Equal reports structural equality: same kind, same identifier, and the
// same attribute multiset. Activity times participate for activities.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Kind != other.Kind || !r.ID.Equal(other.ID) {
		return false
	}
	if !r.Attributes.Equal(other.Attributes) {
		return false
	}
	return sameTime(r.StartTime, other.StartTime) && sameTime(r.EndTime, other.EndTime)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// AttrType is the prov:type attribute key.
const AttrType = "prov:type"
