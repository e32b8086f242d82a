// Package logging provides the hub's structured logging façade.
//
// All subsystems log through the package-level functions (Debug, Info, Warn,
// Error) with a subsystem tag as the first argument:
//
//	logging.Info("Cache", "promoted %d entries from L2", n)
//
// The façade wraps log/slog with a text handler; Init wires the handler once
// at process start. Log level selection happens at the handler, so disabled
// levels cost a single atomic check at the call site.
package logging
