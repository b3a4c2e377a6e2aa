package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// LoadEnvFiles exports KEY=VALUE pairs from the usual .env locations without overriding
// variables that are already set.
func LoadEnvFiles() error {
	envPaths := []string{
		"./.env",
	}

	if home, err := os.UserHomeDir(); err == nil {
		envPaths = append(envPaths,
			filepath.Join(home, ".medicamenta", ".env"),
			filepath.Join(home, ".config", "medicamenta", ".env"),
		)
	}

	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			if err := loadEnvFile(path); err != nil {
				return err
			}
		}
	}

	return nil
}

func loadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		}

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}

// envAliases lists the shorter names accepted for some canonical variables, in priority order
var envAliases = map[string][]string{
	"MEDICAMENTA_SECURITY_JWT_SECRET":     {"MEDICAMENTA_JWT_SECRET", "JWT_SECRET"},
	"MEDICAMENTA_SECURITY_ADMIN_PASSWORD": {"MEDICAMENTA_ADMIN_PASSWORD"},
	"MEDICAMENTA_LOCK_REDIS_URL":          {"REDIS_URL"},
}

// aliasKeys maps each aliased variable to its config key
var aliasKeys = map[string]string{
	"MEDICAMENTA_SECURITY_JWT_SECRET":     "security.jwt_secret",
	"MEDICAMENTA_SECURITY_ADMIN_PASSWORD": "security.admin_password",
	"MEDICAMENTA_LOCK_REDIS_URL":          "lock.redis_url",
}

// ResolveEnvWithAliases returns the canonical variable or, failing that, its first set alias.
func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}

	for _, alias := range envAliases[canonicalKey] {
		if val := os.Getenv(alias); val != "" {
			return val
		}
	}

	return ""
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
