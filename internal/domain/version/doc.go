// Package version serves the browser's /json/version metadata.
//
// Bodies come from the tracked browser through the backoff connector and
// are shared for ten seconds by a single-flight cache, so a burst of
// clients asking for the websocket URL costs one upstream request. While
// a browser is tracked but not answering, the query retries briefly and
// then serves Placeholder, which callers report as an error.
//
// When a hostname is configured the webSocketDebuggerUrl host is replaced
// so the URL is reachable from outside the container.
package version
