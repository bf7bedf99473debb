// Package id generates and checks job identifiers.
package id

import (
	"github.com/google/uuid"
)

// Prefix is prepended to every generated job ID.
const Prefix = "job-"

// Generate returns a new random job ID.
// Format: job-<uuidv4>
// Example: job-9b2f4c1e-3a5d-4e8f-b1c2-7d6e5f4a3b2c
func Generate() string {
	return Prefix + uuid.NewString()
}

// Valid reports whether s looks like an ID produced by Generate.
func Valid(s string) bool {
	if len(s) <= len(Prefix) || s[:len(Prefix)] != Prefix {
		return false
	}
	_, err := uuid.Parse(s[len(Prefix):])
	return err == nil
}
