// Package config loads the user's drive/image catalogue from
// ~/.floppy (TOML), seeding it from an embedded default on first run,
// and exposes the selected drive's geometry to the CLI.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

//go:embed floppy.toml
var defaultConfigData []byte

// Selected drive, populated by Initialize.
var (
	DriveName string
	Cyls      int
	Heads     int
	RPM       int
	MaxKBps   int
	Images    []string
	ImageMap  map[string]string // image name -> filename
)

type fileConfig struct {
	Default string       `toml:"default"`
	Drive   []driveEntry `toml:"drive"`
	Image   []imageEntry `toml:"image"`
}

type driveEntry struct {
	Name    string   `toml:"name"`
	Cyls    int      `toml:"cyls"`
	Heads   int      `toml:"heads"`
	RPM     int      `toml:"rpm"`
	MaxKBps int      `toml:"maxkbps"`
	Images  []string `toml:"images"`
}

type imageEntry struct {
	Name string `toml:"name"`
	File string `toml:"file"`
}

// configPath is ~/.floppy, or the per-user config directory on
// Windows.
func configPath() (string, error) {
	if runtime.GOOS == "windows" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user config directory: %w", err)
		}
		return filepath.Join(dir, "floppy", ".floppy"), nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user home directory: %w", err)
	}
	return filepath.Join(dir, ".floppy"), nil
}

// Initialize loads the config file (creating it from the embedded
// default if absent), selects the default drive, and validates its
// geometry.
func Initialize() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := os.WriteFile(path, defaultConfigData, 0o644); err != nil {
			return fmt.Errorf("failed to create default config file at %s: %w", path, err)
		}
	}

	var conf fileConfig
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return fmt.Errorf("failed to parse config at %s: %w", path, err)
	}
	if conf.Default == "" {
		return fmt.Errorf("`default` key is missing or empty in %s", path)
	}

	var drive *driveEntry
	for i := range conf.Drive {
		if conf.Drive[i].Name == conf.Default {
			drive = &conf.Drive[i]
			break
		}
	}
	if drive == nil {
		return fmt.Errorf("default drive %q not found in config", conf.Default)
	}
	if drive.Cyls <= 0 || drive.Heads <= 0 || drive.RPM <= 0 || drive.MaxKBps <= 0 {
		return fmt.Errorf("drive %q has invalid geometry (cyls=%d heads=%d rpm=%d maxkbps=%d)",
			drive.Name, drive.Cyls, drive.Heads, drive.RPM, drive.MaxKBps)
	}
	if len(drive.Images) == 0 {
		return fmt.Errorf("drive %q has no images listed", drive.Name)
	}

	ImageMap = make(map[string]string, len(conf.Image))
	for _, img := range conf.Image {
		ImageMap[img.Name] = img.File
	}
	for _, name := range drive.Images {
		if _, ok := ImageMap[name]; !ok {
			return fmt.Errorf("image %q listed under drive %q not found in image array", name, drive.Name)
		}
	}

	DriveName = drive.Name
	Cyls = drive.Cyls
	Heads = drive.Heads
	RPM = drive.RPM
	MaxKBps = drive.MaxKBps
	Images = append([]string(nil), drive.Images...)
	return nil
}

// GetImageFilename resolves an image name from the catalogue to its
// built-in image filename.
func GetImageFilename(imageName string) (string, error) {
	filename, ok := ImageMap[imageName]
	if !ok {
		return "", fmt.Errorf("image %q not found in configuration", imageName)
	}
	return filename, nil
}
