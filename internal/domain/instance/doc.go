// Package instance holds the state shared between the orchestrator, the
// version query path and the proxy: the set of spawned browser pids, the
// upstream health flag and the cacheable flag.
//
// IsEmpty is a single atomic load so the proxy's connector can consult it
// on every refused dial without contending with forks.
package instance
