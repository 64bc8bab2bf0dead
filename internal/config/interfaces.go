package config

import "context"

// ParameterProvider resolves configuration values stored outside the
// process environment, such as SSM Parameter Store paths.
type ParameterProvider interface {
	// GetParametersBatch resolves keys and returns key -> value for every
	// key found.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
