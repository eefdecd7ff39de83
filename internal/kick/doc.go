// Package kick is the channel status provider backed by Kick's public
// channel API (GET <base>/<slug>).
//
// A single owned *http.Client is built by New and reused for the process
// lifetime. Lookups distinguish "not found" from "unavailable"; bulk status
// requests never fail per key: any error folds into an offline status.
package kick
