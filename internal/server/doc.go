// Package server implements the core HTTP and WebSocket functionality for the
// Relay chat server.
//
// The implementation is organized into specialized files for configuration,
// the connection registry, the history buffer, hub management, clients,
// routing, and HTTP handlers to keep the codebase maintainable and testable
// as the project grows.
package server
