// Package pipeline orchestrates validation of one incoming provenance
// document as a strict linear state chain:
//
//	RECEIVED → PARSED → STRUCTURALLY_VALID → REFERENCES_VERIFIED →
//	CPM_VALID → NAMESPACES_VALID → ACCEPTED
//
// Each stage either advances or terminates the request with a typed
// DocumentError; there are no backward transitions and no retries. The
// document is never persisted unless the whole chain reaches ACCEPTED.
package pipeline
