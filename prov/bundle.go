package prov

// Bundle is a named graph: a set of records and relations scoped to one
// organization and document, plus the namespaces its identifiers use.
type Bundle struct {
	ID         QualifiedName
	Namespaces []Namespace

	records   []*Record
	relations []*Relation
	byID      map[string]*Record
}

// NewBundle constructs an empty bundle.
func NewBundle(id QualifiedName) *Bundle {
	return &Bundle{ID: id, byID: make(map[string]*Record)}
}

// AddNamespace registers a namespace, replacing any earlier binding of the
// same prefix.
func (b *Bundle) AddNamespace(ns Namespace) {
	for i, existing := range b.Namespaces {
		if existing.Prefix == ns.Prefix {
			b.Namespaces[i] = ns
			return
		}
	}
	b.Namespaces = append(b.Namespaces, ns)
}

// AddRecord adds a record. A record with an already-present identifier
// replaces the earlier one.
func (b *Bundle) AddRecord(r *Record) {
	key := recordKey(r.ID)
	if prev, ok := b.byID[key]; ok {
		for i, existing := range b.records {
			if existing == prev {
				b.records[i] = r
				break
			}
		}
		b.byID[key] = r
		return
	}
	b.byID[key] = r
	b.records = append(b.records, r)
}

// AddRelation adds a relation.
func (b *Bundle) AddRelation(r *Relation) {
	b.relations = append(b.relations, r)
}

// Record returns the record with the given identifier, or nil.
func (b *Bundle) Record(id QualifiedName) *Record {
	return b.byID[recordKey(id)]
}

// Records returns all records in insertion order.
func (b *Bundle) Records() []*Record {
	return b.records
}

// Relations returns all relations in insertion order.
func (b *Bundle) Relations() []*Relation {
	return b.relations
}

// RecordsOfKind returns all records of one kind.
func (b *Bundle) RecordsOfKind(kind RecordKind) []*Record {
	var out []*Record
	for _, r := range b.records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Entities returns all entity records.
func (b *Bundle) Entities() []*Record { return b.RecordsOfKind(KindEntity) }

// Activities returns all activity records.
func (b *Bundle) Activities() []*Record { return b.RecordsOfKind(KindActivity) }

// Agents returns all agent records.
func (b *Bundle) Agents() []*Record { return b.RecordsOfKind(KindAgent) }

// RelationsOfKind returns all relations of one kind.
func (b *Bundle) RelationsOfKind(kind RelationKind) []*Relation {
	var out []*Relation
	for _, r := range b.relations {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Equal reports structural equality: same identifier, same namespace set,
// and the same record and relation multisets. Insertion order is irrelevant.
func (b *Bundle) Equal(other *Bundle) bool {
	if b == nil || other == nil {
		return b == other
	}
	if !b.ID.Equal(other.ID) {
		return false
	}
	if !sameNamespaceSet(b.Namespaces, other.Namespaces) {
		return false
	}
	if len(b.records) != len(other.records) {
		return false
	}
	for _, r := range b.records {
		if !r.Equal(other.Record(r.ID)) {
			return false
		}
	}
	if len(b.relations) != len(other.relations) {
		return false
	}
	matched := make([]bool, len(other.relations))
	for _, r := range b.relations {
		found := false
		for i, o := range other.relations {
			if !matched[i] && r.Equal(o) {
				matched[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sameNamespaceSet(a, b []Namespace) bool {
	if len(a) != len(b) {
		return false
	}
	for _, ns := range a {
		found := false
		for _, other := range b {
			if ns == other {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func recordKey(id QualifiedName) string {
	if id.Namespace.URI != "" {
		return id.URI()
	}
	return id.String()
}

// Document is a parsed PROV document: top-level namespaces plus its bundles.
// The registry accepts exactly one bundle per submitted document.
type Document struct {
	Namespaces []Namespace
	Bundles    []*Bundle
}
