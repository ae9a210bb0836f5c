package refcheck

import (
	"github.com/c360studio/provreg/prov"
	"github.com/c360studio/provreg/vocabulary/cpm"
)

// Reference is the resolved view of a connector's four mandatory
// reference attributes.
type Reference struct {
	ConnectorID  prov.QualifiedName
	BundleID     prov.QualifiedName
	MetaBundleID prov.QualifiedName
	HashValue    string
	HashAlg      string
}

// ExtractReference reads the mandatory reference attributes off a
// connector entity. ok is false when any of the four is missing or when an
// id attribute is not a qualified name.
func ExtractReference(e *prov.Record) (ref Reference, ok bool) {
	ref.ConnectorID = e.ID

	vals := make([]prov.Value, 0, len(cpm.ConnectorAttrs))
	for _, key := range cpm.ConnectorAttrs {
		v, present := e.Attributes.First(key)
		if !present {
			return ref, false
		}
		vals = append(vals, v)
	}
	bundleID, metaID, hash, alg := vals[0], vals[1], vals[2], vals[3]
	if bundleID.Kind != prov.ValueName || metaID.Kind != prov.ValueName {
		return ref, false
	}

	ref.BundleID = bundleID.Name
	ref.MetaBundleID = metaID.Name
	ref.HashValue = hash.Str
	ref.HashAlg = alg.Str
	return ref, true
}

// HasMandatoryAttributes reports whether the connector carries all four
// mandatory reference attributes.
func HasMandatoryAttributes(e *prov.Record) bool {
	_, ok := ExtractReference(e)
	return ok
}
