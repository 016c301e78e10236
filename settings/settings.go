// Package settings persists small UI state between runs, keyed by file
// rather than by terminal.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Settings is the persisted UI state.
type Settings struct {
	Theme string `yaml:"theme"`
}

// DefaultPath places the settings file under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "termchart-settings.yml"
	}
	return filepath.Join(dir, "termchart", "settings.yml")
}

// Load reads the settings file. A missing file or an unknown theme value
// falls back to the dark default; other failures are errors.
func Load(path string) (*Settings, error) {
	s := &Settings{Theme: ThemeDark}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("settings: decode %s: %w", path, err)
	}
	if s.Theme != ThemeDark && s.Theme != ThemeLight {
		s.Theme = ThemeDark
	}
	return s, nil
}

// Save writes the settings file, creating parent directories as needed.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("settings: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", path, err)
	}
	return nil
}

// ToggleTheme flips between dark and light and returns the new theme.
func (s *Settings) ToggleTheme() string {
	if s.Theme == ThemeDark {
		s.Theme = ThemeLight
	} else {
		s.Theme = ThemeDark
	}
	return s.Theme
}
