// Package handlers contains the HTTP handlers for the gateway and principal
// APIs: resource registration and lifecycle, capability discovery, request
// processing, sessions, and health probes. Handlers are plain
// http.HandlerFunc methods wired onto an http.ServeMux by the server.
package handlers
