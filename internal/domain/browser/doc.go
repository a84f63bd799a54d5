// Package browser launches and terminates headless browser processes.
//
// Launch arguments come from one of two tables: the performance table used
// in production and a reduced table for smoke tests. The first two slots
// always carry the debugging address and port so a fork on another port
// only patches those. Lightpanda builds take `--port P --host H` instead.
//
// Spawned children are reaped in the background. A crashed browser stays
// in the registry until the next ShutdownAll, matching how the proxy and
// version path treat "tracked but down" as a reason to keep retrying.
package browser
