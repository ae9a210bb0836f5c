package cpm

// Token attribute keys carried on the token entity inside a meta-bundle.
const (
	AttrOriginatorID             = "cpm:originatorId"
	AttrAuthorityID              = "cpm:authorityId"
	AttrTokenTimestamp           = "cpm:tokenTimestamp"
	AttrDocumentCreationTime     = "cpm:documentCreationTimestamp"
	AttrDocumentDigest           = "cpm:documentDigest"
	AttrBundleURI                = "cpm:bundle"
	AttrHashFunction             = "cpm:hashFunction"
	AttrTrustedPartyURI          = "cpm:trustedPartyUri"
	AttrTrustedPartyCert         = "cpm:trustedPartyCertificate"
	AttrSignature                = "cpm:signature"
)
