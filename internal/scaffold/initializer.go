// Package scaffold writes a starter cohort.yml for `cohort init`.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/cohort/internal/config"
)

// ConfigFile is the file Initialize creates.
const ConfigFile = "cohort.yml"

//go:embed templates/*
var templatesFS embed.FS

// Initialize writes cohort.yml into dir and returns its path.
// If force is true an existing cohort.yml is overwritten.
func Initialize(dir string, force bool) (string, error) {
	path := filepath.Join(dir, ConfigFile)

	if !force {
		if err := CheckExisting(dir); err != nil {
			return "", err
		}
	}

	content, err := templatesFS.ReadFile("templates/cohort.yml.tmpl")
	if err != nil {
		return "", fmt.Errorf("failed to read cohort.yml template: %w", err)
	}

	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	// The template must always load cleanly
	if _, err := config.Load(path); err != nil {
		return "", fmt.Errorf("created %s is invalid: %w", path, err)
	}

	return path, nil
}
