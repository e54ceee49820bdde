// Package storage provides the optional durable backing for the recipient
// registry.
//
// It persists:
//   - The recipient set (so activations survive restarts)
//   - An append-only log of broadcast firings
//
// Storage is off by default; the registry is then purely in-memory.
package storage
