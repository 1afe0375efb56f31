// Package generator models generator lists: the fuel decay rules, the
// persisted list documents and the dashboard text built from them.
//
// Nothing in this package talks to a chat platform. State is always derived
// from (item, now), so any snapshot can be re-rendered identically.
package generator
