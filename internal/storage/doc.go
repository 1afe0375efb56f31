// Package storage provides the persistence layer used by the bot.
//
// It stores small JSON documents keyed by (namespace, key):
//   - generator lists ("generators" namespace)
//   - dashboard bindings ("dashboards" namespace)
//
// plus an append-only audit log of operator actions.
//
// Every document write is an atomic replace: readers see either the previous
// document or the new one, never a partial write.
package storage
