package token

// GraphType identifies which view of a document a token attests.
type GraphType string

// Attested graph views.
const (
	GraphTypeGraph          GraphType = "graph"
	GraphTypeMeta           GraphType = "meta"
	GraphTypeBackbone       GraphType = "backbone"
	GraphTypeDomainSpecific GraphType = "domain_specific"
)

// AdditionalData carries the non-digest attestation material.
type AdditionalData struct {
	Bundle                  string `json:"bundle"`
	HashFunction            string `json:"hashFunction"`
	TrustedPartyURI         string `json:"trustedPartyUri"`
	TrustedPartyCertificate string `json:"trustedPartyCertificate"`
}

// TokenData is the signed payload of an attestation.
type TokenData struct {
	OriginatorID              string         `json:"originatorId"`
	AuthorityID               string         `json:"authorityId"`
	TokenTimestamp            string         `json:"tokenTimestamp"`
	DocumentCreationTimestamp string         `json:"documentCreationTimestamp"`
	DocumentDigest            string         `json:"documentDigest"`
	AdditionalData            AdditionalData `json:"additionalData"`
}

// SignedToken is a trusted-party attestation over one stored document.
type SignedToken struct {
	Data      TokenData `json:"data"`
	Signature string    `json:"signature"`
}

// IssueRequest is the canonical payload submitted for signing.
type IssueRequest struct {
	OrganizationID string    `json:"organizationId"`
	Document       string    `json:"document"` // base64
	DocumentFormat string    `json:"documentFormat"`
	Type           GraphType `json:"type"`
	GraphID        string    `json:"graphId"`
	CreatedOn      string    `json:"createdOn"`
}
