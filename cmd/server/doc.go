// Package main is the entry point of the headless browser sidecar.
//
// The process launches a Chrome-compatible browser with remote debugging
// enabled, relays the debugging port through a rewriting TCP proxy and
// serves a small HTTP control surface for forking, health checks,
// /json/version and shutdown.
//
// Configuration:
//   - Environment variables, optionally from a dotenv file
//   - Positional arguments (override env vars)
//
// Usage:
//
//	./server [chrome-path] [chrome-address] [init|ignore] [debug-port] [server-port] [headless]
//
//	# Development mode (console logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: stop serving and terminate tracked browsers
package main
