// Package token is the client for the trusted-party attestation service.
// The trusted party signs a canonical payload describing a stored
// document; the resulting token binds the document's content hash, origin,
// and timestamps, and is the material the reference resolver compares
// claimed hashes against.
package token
