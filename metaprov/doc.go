// Package metaprov maintains the append-only meta-provenance graph: one
// shared bundle per meta-bundle id tracking every named document's
// versions across organizations. Each accepted document folds in as a new
// concrete version entity specialized from its general document entity,
// chained to its predecessor by a prov:revisionOf derivation, with the
// trusted-party token attached as entities and relations in the same
// graph.
//
// Folds into the same meta-bundle are serialized by the storage layer's
// revision-checked compare-and-set: the read-then-write sequence retries
// on conflict, so two racing updates can never mint the same version
// number for one general entity.
package metaprov
