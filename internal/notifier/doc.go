// Package notifier delivers operator alerts (generator expiry and similar)
// off the refresh path.
//
// Notify only enqueues. A small worker pool sends through a transport.Messenger
// under a shared token-bucket limit, retrying failures with jittered
// exponential backoff. A platform rate-limit hint stretches the next retry
// delay to at least the requested wait.
//
// A short in-memory history of delivered alerts backs the /gen status output.
package notifier
