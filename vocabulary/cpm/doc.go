// Package cpm provides vocabulary constants for the Common Provenance
// Model: the namespace, the prov:type values that mark backbone records
// (main activity, forward/backward connectors, sender/receiver agents),
// and the mandatory connector attribute keys.
//
// The attribute keys appear verbatim in validation messages, so changing
// any constant here changes the external contract.
package cpm
