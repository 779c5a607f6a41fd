// Package env reads popterm settings from the process environment.
//
// Values are read on every call so changes made after startup (for example
// a shell switched between setup and the first open) are observed.
package env

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Spec is the set of environment variables popterm understands.
type Spec struct {
	Shell      string `envconfig:"POPTERM_SHELL"`
	LoginShell string `envconfig:"SHELL"`
	LogLevel   string `envconfig:"POPTERM_LOG_LEVEL"`
	LogFile    string `envconfig:"POPTERM_LOG_FILE"`
}

// EnvironmentError reports that no usable value was found in the environment.
type EnvironmentError struct {
	Vars []string
}

func (e *EnvironmentError) Error() string {
	return "no usable value in environment (checked " + strings.Join(e.Vars, ", ") + ")"
}

// Load reads Spec from the current environment.
func Load() (*Spec, error) {
	var s Spec
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &s, nil
}

// DefaultShell returns the user's shell, preferring POPTERM_SHELL over SHELL.
// It fails with *EnvironmentError when neither is set.
func DefaultShell() (string, error) {
	s, err := Load()
	if err != nil {
		return "", err
	}
	for _, shell := range []string{s.Shell, s.LoginShell} {
		if shell = strings.TrimSpace(shell); shell != "" {
			return shell, nil
		}
	}
	return "", &EnvironmentError{Vars: []string{"POPTERM_SHELL", "SHELL"}}
}
