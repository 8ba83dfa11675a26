package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"pushdeploy/internal/project"
	"pushdeploy/pkg/fileutil"
)

// configFileNames are searched, in order, when --config is not given.
var configFileNames = []string{"projects.yaml", "projects.json", "projects.toml"}

// resolveConfigFile returns the explicit path if set, otherwise the first
// config file found in the default locations.
func resolveConfigFile(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	searchPaths := fileutil.DefaultConfigPaths(configFileNames...)
	if path := fileutil.FirstExisting(searchPaths); path != "" {
		return path, nil
	}

	var b strings.Builder
	b.WriteString("no configuration file found in default locations:\n")
	for _, path := range searchPaths {
		fmt.Fprintf(&b, "  - %s\n", path)
	}
	b.WriteString("use --config to specify a custom location")
	return "", fmt.Errorf("%s", b.String())
}

// loadRegistry resolves and loads the project configuration.
func loadRegistry() (string, *project.Registry, error) {
	path, err := resolveConfigFile(configFile)
	if err != nil {
		return "", nil, err
	}

	registry, err := project.LoadConfig(path)
	if err != nil {
		return path, nil, fmt.Errorf("failed to load configuration %s: %w", path, err)
	}
	return path, registry, nil
}

// Helper functions for environment variables
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
