package cpm

import "github.com/c360studio/provreg/prov"

// NamespaceURI is the base IRI for CPM vocabulary terms.
const NamespaceURI = "https://www.commonprovenance.org/cpm-namespace-v1-0/"

// ProvURI is the W3C PROV ontology base IRI.
const ProvURI = "http://www.w3.org/ns/prov#"

// PavURI is the Provenance, Authoring and Versioning ontology base IRI,
// used for pav:version on concrete document versions.
const PavURI = "http://purl.org/pav/"

// Namespace is the cpm prefix binding.
var Namespace = prov.Namespace{Prefix: "cpm", URI: NamespaceURI}

// ProvNamespace is the prov prefix binding.
var ProvNamespace = prov.Namespace{Prefix: "prov", URI: ProvURI}

// PavNamespace is the pav prefix binding.
var PavNamespace = prov.Namespace{Prefix: "pav", URI: PavURI}

// Backbone prov:type values.
var (
	// TypeMainActivity marks the single main activity of a bundle.
	TypeMainActivity = prov.Name(Namespace, "mainActivity")

	// TypeForwardConnector marks an entity handing data downstream.
	TypeForwardConnector = prov.Name(Namespace, "ForwardConnector")

	// TypeBackwardConnector marks an entity receiving data from upstream.
	TypeBackwardConnector = prov.Name(Namespace, "BackwardConnector")

	// TypeSenderAgent marks the agent a backward connector is attributed to.
	TypeSenderAgent = prov.Name(Namespace, "senderAgent")

	// TypeReceiverAgent marks the agent a forward connector is attributed to.
	TypeReceiverAgent = prov.Name(Namespace, "receiverAgent")
)

// PROV vocabulary values used by the meta-provenance graph.
var (
	// TypeBundle is the prov:type of general and concrete document entities.
	TypeBundle = prov.Name(ProvNamespace, "Bundle")

	// TypeRevisionOf types the derivation edge between consecutive
	// concrete versions of the same general document entity.
	TypeRevisionOf = prov.Name(ProvNamespace, "revisionOf")
)

// Connector and main-activity attribute keys (prefixed form).
const (
	// AttrReferencedBundleID names the remote bundle a connector points at.
	AttrReferencedBundleID = "cpm:referencedBundleId"

	// AttrReferencedMetaBundleID names the remote meta-bundle; also the
	// mandatory attribute of the main activity.
	AttrReferencedMetaBundleID = "cpm:referencedMetaBundleId"

	// AttrReferencedBundleHashValue is the claimed hex digest of the
	// referenced bundle's content.
	AttrReferencedBundleHashValue = "cpm:referencedBundleHashValue"

	// AttrHashAlg is the digest algorithm name, e.g. "SHA256".
	AttrHashAlg = "cpm:hashAlg"

	// AttrVersion is the monotonically increasing concrete version number.
	AttrVersion = "pav:version"
)

// ConnectorAttrs lists the four mandatory connector attributes in check
// order. A connector missing any of them is invalid regardless of other
// checks.
var ConnectorAttrs = []string{
	AttrReferencedBundleID,
	AttrReferencedMetaBundleID,
	AttrReferencedBundleHashValue,
	AttrHashAlg,
}
