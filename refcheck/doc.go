// Package refcheck resolves and verifies connector references: existence
// of the referenced bundle and meta-bundle (locally against the node's own
// indexes, remotely via an HTTP existence probe), followed by verification
// of the claimed content hash against the referenced bundle's issued token.
//
// The two existence legs of one connector are independent network reads
// and run concurrently; hash verification only runs once both succeed.
package refcheck
