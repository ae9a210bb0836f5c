package prov

import "strings"

// Namespace binds a prefix to a base URI.
type Namespace struct {
	Prefix string `json:"prefix"`
	URI    string `json:"uri"`
}

// Valid reports whether the namespace URI can take a local name suffix.
// PROV requires base URIs to end in a separator so concatenation with a
// local name yields a well-formed identifier.
func (n Namespace) Valid() bool {
	return n.URI != "" && (strings.HasSuffix(n.URI, "/") || strings.HasSuffix(n.URI, "#"))
}

// QualifiedName is a namespaced identifier. The zero value is "no name".
type QualifiedName struct {
	Namespace Namespace `json:"namespace"`
	Local     string    `json:"local"`
}

// Name constructs a qualified name in the given namespace.
func Name(ns Namespace, local string) QualifiedName {
	return QualifiedName{Namespace: ns, Local: local}
}

// IsZero reports whether the name is unset.
func (q QualifiedName) IsZero() bool {
	return q.Local == "" && q.Namespace.URI == "" && q.Namespace.Prefix == ""
}

// String returns the prefixed form, e.g. "cpm:mainActivity".
func (q QualifiedName) String() string {
	if q.Namespace.Prefix == "" {
		return q.Local
	}
	return q.Namespace.Prefix + ":" + q.Local
}

// URI returns the fully expanded identifier.
func (q QualifiedName) URI() string {
	return q.Namespace.URI + q.Local
}

// Equal compares two names by expanded URI when both namespaces carry one,
// falling back to the prefixed form otherwise. Prefix spelling alone never
// distinguishes two names that expand to the same URI.
func (q QualifiedName) Equal(other QualifiedName) bool {
	if q.Namespace.URI != "" && other.Namespace.URI != "" {
		return q.URI() == other.URI()
	}
	return q.String() == other.String()
}

// ParseQualifiedName splits a "prefix:local" string and resolves the prefix
// against the given namespace set. A name without a prefix is returned with
// an empty namespace; resolution failures keep the prefix but no URI.
func ParseQualifiedName(s string, namespaces []Namespace) QualifiedName {
	prefix, local, ok := strings.Cut(s, ":")
	if !ok {
		return QualifiedName{Local: s}
	}
	for _, ns := range namespaces {
		if ns.Prefix == prefix {
			return QualifiedName{Namespace: ns, Local: local}
		}
	}
	return QualifiedName{Namespace: Namespace{Prefix: prefix}, Local: local}
}
