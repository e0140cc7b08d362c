package registry

import (
	"fmt"
	"os"

	"botvac-bridge/internal/robot"

	"gopkg.in/yaml.v3"
)

// File is the on-disk robots list.
//
//	robots:
//	  - serial: OPS01234-0123456789AB
//	    secret: ...
//	    name: Kitchen
//	    traits: [maps, persistent_maps]
//	    cleaning:
//	      mode: turbo
//	      navigation: extra care
type File struct {
	Robots []FileEntry `yaml:"robots"`
}

type FileEntry struct {
	Serial            string        `yaml:"serial"`
	Secret            string        `yaml:"secret"`
	Name              string        `yaml:"name"`
	Traits            []string      `yaml:"traits"`
	Endpoint          string        `yaml:"endpoint,omitempty"`
	Vendor            string        `yaml:"vendor,omitempty"`
	HasPersistentMaps *bool         `yaml:"has_persistent_maps,omitempty"`
	Cleaning          *CleaningPref `yaml:"cleaning,omitempty"`
}

// CleaningPref names the preferred run in words.
type CleaningPref struct {
	Mode       string `yaml:"mode"`
	Navigation string `yaml:"navigation"`
}

// Identity converts the entry. Without an explicit flag, the persistent_maps
// trait decides whether the robot cleans on its saved floor plan.
func (e FileEntry) Identity() (robot.Identity, error) {
	if e.Serial == "" || e.Secret == "" {
		return robot.Identity{}, fmt.Errorf("robot %q: serial and secret are required", e.Name)
	}

	id := robot.Identity{
		Serial:   e.Serial,
		Secret:   e.Secret,
		Name:     e.Name,
		Traits:   e.Traits,
		Endpoint: e.Endpoint,
		Vendor:   e.Vendor,
	}
	if e.HasPersistentMaps != nil {
		id.HasPersistentMaps = *e.HasPersistentMaps
	} else {
		id.HasPersistentMaps = id.HasTrait("persistent_maps")
	}

	if e.Cleaning != nil {
		mode, err := robot.ParseCleaningMode(e.Cleaning.Mode)
		if err != nil {
			return robot.Identity{}, fmt.Errorf("robot %s: %w", e.Serial, err)
		}
		nav, err := robot.ParseNavigationMode(e.Cleaning.Navigation)
		if err != nil {
			return robot.Identity{}, fmt.Errorf("robot %s: %w", e.Serial, err)
		}
		id.Cleaning = &robot.CleaningRequest{Mode: mode, NavigationMode: nav}
	}
	return id, nil
}

// Parse decodes a robots file body.
func Parse(data []byte) ([]robot.Identity, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse robots file: %w", err)
	}

	seen := make(map[string]bool, len(f.Robots))
	ids := make([]robot.Identity, 0, len(f.Robots))
	for _, entry := range f.Robots {
		id, err := entry.Identity()
		if err != nil {
			return nil, err
		}
		if seen[id.Serial] {
			return nil, fmt.Errorf("robot %s is listed twice", id.Serial)
		}
		seen[id.Serial] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func LoadFile(path string) ([]robot.Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read robots file: %w", err)
	}
	return Parse(data)
}

// Marshal renders identities in robots file form. Secrets are included.
func Marshal(ids []robot.Identity) ([]byte, error) {
	f := File{Robots: make([]FileEntry, len(ids))}
	for i, id := range ids {
		flag := id.HasPersistentMaps
		f.Robots[i] = FileEntry{
			Serial:            id.Serial,
			Secret:            id.Secret,
			Name:              id.Name,
			Traits:            id.Traits,
			Endpoint:          id.Endpoint,
			Vendor:            id.Vendor,
			HasPersistentMaps: &flag,
		}
		if id.Cleaning != nil {
			f.Robots[i].Cleaning = &CleaningPref{
				Mode:       modeName(id.Cleaning.Mode),
				Navigation: navigationName(id.Cleaning.NavigationMode),
			}
		}
	}
	return yaml.Marshal(f)
}

func modeName(m robot.CleaningMode) string {
	if m == robot.ModeEco {
		return "eco"
	}
	return "turbo"
}

func navigationName(n robot.NavigationMode) string {
	switch n {
	case robot.NavigationExtraCare:
		return "extra care"
	case robot.NavigationDeep:
		return "deep"
	}
	return "normal"
}
