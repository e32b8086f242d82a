// Package api is the central contract layer of the hub.
//
// It holds the shared domain types (paths, topics, data points, connection
// configurations), the typed error values every subsystem reports, and the
// handler interfaces through which subsystems consume each other.
//
// Subsystems reach each other's services through handler interfaces rather
// than concrete types: each one implements a handler interface from this
// package and registers it at bootstrap (RegisterHierarchy,
// RegisterTopicRepository, ...). Consumers resolve the handler through the
// matching Get function or receive it from internal/app at construction.
// Packages still import each other for plain types and helpers (config for
// option structs, connections for the publish gate). This keeps the dependency graph
// acyclic: everything depends on api, api depends on nothing but the
// standard library.
//
// The one deliberate exception is the event bus: events are delivered through
// internal/events, not through handler calls, so that producers never block
// on consumers.
package api
