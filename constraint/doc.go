// Package constraint applies the fixed CPM rule set over a bundle's
// already-classified backbone: main-activity generation and usage
// discipline, connector derivation closure, specialization and attribution
// requirements, and self-reference rejection.
//
// Rules run in a fixed order and the first failing rule determines the
// reported error. The violation messages are external contract: downstream
// tooling matches them literally, so reordering rules or rewording
// messages is a breaking change.
package constraint
