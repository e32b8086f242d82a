package config

import (
	"fmt"
	"strings"
)

// ConfigurationError represents a structured error that occurs during
// configuration loading.
type ConfigurationError struct {
	FileName  string `json:"fileName"`  // Base name of the file
	Category  string `json:"category"`  // Configuration category (logging, mcp, connections, ...)
	ErrorType string `json:"errorType"` // Type of error (parse, validation, io)
	Message   string `json:"message"`   // Human-readable error message
}

// Error implements the error interface.
func (ce ConfigurationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ce.Category, ce.FileName, ce.Message)
}

// ConfigurationErrorCollection holds multiple configuration errors.
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

// Error implements the error interface for the collection.
func (cec *ConfigurationErrorCollection) Error() string {
	if len(cec.Errors) == 0 {
		return "no configuration errors"
	}
	if len(cec.Errors) == 1 {
		return cec.Errors[0].Error()
	}
	return fmt.Sprintf("%d configuration errors: %s (and %d more)",
		len(cec.Errors), cec.Errors[0].Error(), len(cec.Errors)-1)
}

// HasErrors returns true if there are any errors in the collection.
func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

// AddError appends a basic error with context.
func (cec *ConfigurationErrorCollection) AddError(fileName, category, errorType, message string) {
	cec.Errors = append(cec.Errors, ConfigurationError{
		FileName:  fileName,
		Category:  category,
		ErrorType: errorType,
		Message:   message,
	})
}

// Summary renders all errors, one per line.
func (cec *ConfigurationErrorCollection) Summary() string {
	lines := make([]string, 0, len(cec.Errors))
	for _, err := range cec.Errors {
		lines = append(lines, "  - "+err.Error())
	}
	return strings.Join(lines, "\n")
}
