// Package prov provides the in-memory model for W3C PROV documents:
// qualified names, namespaces, records (entities, activities, agents),
// relations, and bundles.
//
// The model is deliberately closed: RecordKind and RelationKind enumerate
// every construct the registry understands, so classifiers and checkers can
// match exhaustively instead of inspecting open-ended type information.
// Structural equality (identifier plus attribute multiset) is the one
// definition of "same record" shared by the engine and its tests.
package prov
