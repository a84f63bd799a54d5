// Package http implements the control surface of the sidecar.
//
// Routes:
//
//	GET  /, /health      healthy (200) or unhealthy (503)
//	POST /fork           launch a browser on the default port
//	POST /fork/:port     launch a browser on port
//	GET  /json/version   browser metadata, placeholder with 500 when unreachable
//	POST /shutdown       terminate every tracked browser
//	GET  /status         tracked pids, flags and counters as JSON
//
// Bodies are plain text except /json/version and /status.
package http
