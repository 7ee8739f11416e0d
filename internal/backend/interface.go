// Package backend selects and constructs the remote backend the sync
// engine converges against.
package backend

import (
	"context"
	"time"

	"spend/internal/remote"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend remote.Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// REST specific
	RESTBaseURL string
	RESTAPIKey  string
	RESTTimeout time.Duration

	// Firestore specific
	FirestoreProjectID       string
	FirestoreCollection      string
	FirestoreCredentialsFile string
}

// BackendType represents the type of remote backend
type BackendType string

const (
	MemoryBackend    BackendType = "memory"
	RESTBackend      BackendType = "rest"
	FirestoreBackend BackendType = "firestore"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, RESTBackend, FirestoreBackend:
		return true
	default:
		return false
	}
}
