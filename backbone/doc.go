// Package backbone partitions a PROV bundle into its CPM backbone (main
// activity, connectors, sender/receiver agents, and the relations linking
// them) and the domain-specific remainder.
package backbone
