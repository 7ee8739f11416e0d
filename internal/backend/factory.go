package backend

import (
	"context"
	"fmt"
	"log/slog"

	"spend/internal/remote/firestore"
	"spend/internal/remote/memory"
	"spend/internal/remote/rest"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case RESTBackend:
		return f.createRESTBackend(config)
	case FirestoreBackend:
		return f.createFirestoreBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createRESTBackend(config Config) (*BackendResult, error) {
	opts := []rest.Option{}
	if config.RESTTimeout > 0 {
		opts = append(opts, rest.WithTimeout(config.RESTTimeout))
	}
	if config.RESTAPIKey != "" {
		opts = append(opts, rest.WithAPIKey(config.RESTAPIKey))
	}

	client, err := rest.New(config.RESTBaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize REST backend: %w", err)
	}

	f.logger.Info("initialized REST backend",
		"base_url", config.RESTBaseURL,
		"timeout", config.RESTTimeout)

	return &BackendResult{
		Backend: client,
		Cleanup: nil,
	}, nil
}

func (f *DefaultFactory) createFirestoreBackend(ctx context.Context, config Config) (*BackendResult, error) {
	fs, err := firestore.New(ctx, firestore.Config{
		ProjectID:       config.FirestoreProjectID,
		Collection:      config.FirestoreCollection,
		CredentialsFile: config.FirestoreCredentialsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firestore backend: %w", err)
	}

	f.logger.Info("initialized Firestore backend",
		"project_id", config.FirestoreProjectID,
		"collection", config.FirestoreCollection)

	return &BackendResult{
		Backend: fs,
		Cleanup: fs.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Info("initialized in-memory backend")

	return &BackendResult{
		Backend: memory.New(),
		Cleanup: nil,
	}, nil
}
