// Package config provides the configuration store for shuttle-manager.
// It persists named profiles and global options as YAML documents in the
// configuration directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/yllada/shuttle-manager/common"
	"github.com/yllada/shuttle-manager/profile"
)

// Options holds the global options read from the config document.
type Options struct {
	// Executable overrides the tunnel executable.
	Executable string `yaml:"executable,omitempty"`
}

// knownOptions are the keys kept from the config document.
var knownOptions = map[string]bool{
	"executable": true,
}

// Store holds profiles by name and the global options.
// Mutations are kept in memory until Save is called.
type Store struct {
	configFile   string
	profilesFile string
	profiles     map[string]*profile.Profile
	options      Options
}

// NewStore returns an empty store backed by documents in dir.
func NewStore(dir string) *Store {
	s := &Store{
		configFile:   filepath.Join(dir, common.ConfigFileName),
		profilesFile: filepath.Join(dir, common.ProfilesFileName),
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.profiles = make(map[string]*profile.Profile)
	s.options = Options{}
}

// Load replaces the store content with the persisted documents.
// Missing documents are treated as empty.
func (s *Store) Load() error {
	s.reset()

	var rawOptions map[string]any
	if err := loadYAMLFile(s.configFile, &rawOptions); err != nil {
		return err
	}
	for key, value := range rawOptions {
		if !knownOptions[key] {
			common.LogDebug("Ignoring unknown config option %q", key)
			continue
		}
		executable, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: option %q must be a string", common.ErrConfigLoad, key)
		}
		s.options.Executable = executable
	}

	var rawProfiles map[string]map[string]any
	if err := loadYAMLFile(s.profilesFile, &rawProfiles); err != nil {
		return err
	}
	for name, details := range rawProfiles {
		p, err := profile.FromConfig(details)
		if err != nil {
			return fmt.Errorf("%w: profile %q: %w", common.ErrConfigLoad, name, err)
		}
		s.profiles[name] = p
	}

	common.LogDebug("Loaded %d profiles from %s", len(s.profiles), s.profilesFile)
	return nil
}

// loadYAMLFile decodes path into out, leaving out untouched if the file
// doesn't exist or is empty.
func loadYAMLFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %w", common.ErrConfigLoad, err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: error parsing %s: %w", common.ErrConfigLoad, path, err)
	}
	return nil
}

// Save writes the profiles document. Field names are hyphenated and unset
// fields are omitted.
func (s *Store) Save() error {
	doc := make(map[string]map[string]any, len(s.profiles))
	for name, p := range s.profiles {
		fields := make(map[string]any)
		for field, value := range p.Config() {
			fields[profile.ExternalField(field)] = value
		}
		doc[name] = fields
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: error serializing profiles: %w", common.ErrConfigSave, err)
	}

	if err := os.WriteFile(s.profilesFile, data, 0600); err != nil {
		return fmt.Errorf("%w: %w", common.ErrConfigSave, err)
	}

	return nil
}

// AddProfile registers p under name. It fails with common.ErrAlreadyExists
// if the name is taken, leaving the store unchanged.
func (s *Store) AddProfile(name string, p *profile.Profile) error {
	if _, exists := s.profiles[name]; exists {
		return fmt.Errorf("%w: %s", common.ErrAlreadyExists, name)
	}
	s.profiles[name] = p.Clone()
	return nil
}

// ReplaceProfile stores p under an existing name.
func (s *Store) ReplaceProfile(name string, p *profile.Profile) error {
	if _, exists := s.profiles[name]; !exists {
		return fmt.Errorf("%w: %s", common.ErrNotFound, name)
	}
	s.profiles[name] = p.Clone()
	return nil
}

// RemoveProfile deletes the named profile.
func (s *Store) RemoveProfile(name string) error {
	if _, exists := s.profiles[name]; !exists {
		return fmt.Errorf("%w: %s", common.ErrNotFound, name)
	}
	delete(s.profiles, name)
	return nil
}

// Profile returns a copy of the named profile.
func (s *Store) Profile(name string) (*profile.Profile, error) {
	p, exists := s.profiles[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, name)
	}
	return p.Clone(), nil
}

// Profiles returns copies of all profiles keyed by name.
func (s *Store) Profiles() map[string]*profile.Profile {
	profiles := make(map[string]*profile.Profile, len(s.profiles))
	for name, p := range s.profiles {
		profiles[name] = p.Clone()
	}
	return profiles
}

// Names returns the profile names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Executable returns the configured tunnel executable, or
// common.DefaultExecutable when none is set.
func (s *Store) Executable() string {
	if s.options.Executable != "" {
		return s.options.Executable
	}
	return common.DefaultExecutable
}
