package backend

import (
	"fmt"

	"spend/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.RemoteBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.RemoteBackend)
	}

	return Config{
		Type: backendType,

		RESTBaseURL: appConfig.RESTBaseURL,
		RESTAPIKey:  appConfig.RESTAPIKey,
		RESTTimeout: appConfig.RESTTimeout,

		FirestoreProjectID:       appConfig.FirestoreProjectID,
		FirestoreCollection:      appConfig.FirestoreCollection,
		FirestoreCredentialsFile: appConfig.FirestoreCredentialsFile,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case RESTBackend:
		if c.RESTBaseURL == "" {
			return fmt.Errorf("REST base URL is required for rest backend")
		}

	case FirestoreBackend:
		if c.FirestoreProjectID == "" {
			return fmt.Errorf("Firestore project ID is required for firestore backend")
		}

	case MemoryBackend:
		// Nothing to validate
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, RESTBackend, FirestoreBackend}
}
