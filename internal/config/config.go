// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"jukebox/internal/host"
	"jukebox/pkg/peripheral"
)

// ReactionSpec is the serialized form of one key binding.
type ReactionSpec struct {
	Type   string   `json:"type"`
	Text   string   `json:"text,omitempty"`
	Target string   `json:"target,omitempty"`
	Args   []string `json:"args,omitempty"`
}

// Build turns the spec into a runnable reaction.
func (r ReactionSpec) Build() (host.Reaction, error) {
	switch r.Type {
	case "log":
		return host.LogReaction{}, nil
	case "copy-text":
		return host.CopyTextReaction{Text: r.Text}, nil
	case "launch":
		return host.LaunchReaction{Command: r.Target, Args: r.Args}, nil
	case "website":
		return host.WebsiteReaction{URL: r.Target}, nil
	default:
		return nil, fmt.Errorf("unknown reaction type %q", r.Type)
	}
}

// Profile binds logical keys to reactions. JSON keys are the input key
// names.
type Profile map[peripheral.InputKey]ReactionSpec

// Config is the persisted companion configuration. The core never owns
// it; the reaction worker reads snapshots of it.
type Config struct {
	Profiles       map[string]Profile `json:"profiles"`
	CurrentProfile string             `json:"current_profile"`
}

// Default returns a single profile logging every edge.
func Default() Config {
	profile := Profile{}
	for _, key := range []peripheral.InputKey{
		peripheral.KeySwitch1, peripheral.KeySwitch2, peripheral.KeySwitch3,
		peripheral.KeySwitch4, peripheral.KeySwitch5, peripheral.KeySwitch6,
		peripheral.KeySwitch7, peripheral.KeySwitch8, peripheral.KeySwitch9,
		peripheral.KeySwitch10, peripheral.KeySwitch11, peripheral.KeySwitch12,
		peripheral.KeySwitch13, peripheral.KeySwitch14, peripheral.KeySwitch15,
		peripheral.KeySwitch16,
		peripheral.KnobLeftSwitch, peripheral.KnobLeftClockwise,
		peripheral.KnobLeftCounterClockwise, peripheral.KnobRightSwitch,
		peripheral.KnobRightClockwise, peripheral.KnobRightCounterClockwise,
		peripheral.PedalLeft, peripheral.PedalMiddle, peripheral.PedalRight,
	} {
		profile[key] = ReactionSpec{Type: "log"}
	}

	return Config{
		Profiles:       map[string]Profile{"default": profile},
		CurrentProfile: "default",
	}
}

// Path resolves the config file location: explicit override first, then
// the JUKEBOX_CONFIG environment variable, then the user config dir.
func Path(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if env := os.Getenv("JUKEBOX_CONFIG"); env != "" {
		return env, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "jukebox", "config.json"), nil
}

// Load reads the config file; a missing file yields the default config.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.Profiles) == 0 {
		return Default(), nil
	}
	if _, ok := cfg.Profiles[cfg.CurrentProfile]; !ok {
		return Config{}, fmt.Errorf("current profile %q does not exist", cfg.CurrentProfile)
	}
	return cfg, nil
}

// Save writes the config, creating the parent directory as needed.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Store guards the config and the reactions built from it. It implements
// host.ProfileSource; the lock is held only for the snapshot copy, never
// across a reaction invocation.
type Store struct {
	mu      sync.Mutex
	cfg     Config
	builtBy map[string]map[peripheral.InputKey]host.Reaction
}

// NewStore builds every profile's reactions up front so binding errors
// surface at startup rather than on a key press.
func NewStore(cfg Config) (*Store, error) {
	built := make(map[string]map[peripheral.InputKey]host.Reaction, len(cfg.Profiles))
	for name, profile := range cfg.Profiles {
		m := make(map[peripheral.InputKey]host.Reaction, len(profile))
		for key, spec := range profile {
			r, err := spec.Build()
			if err != nil {
				return nil, fmt.Errorf("profile %q, key %s: %w", name, key, err)
			}
			m[key] = r
		}
		built[name] = m
	}

	return &Store{cfg: cfg, builtBy: built}, nil
}

// ActiveReactions returns a copy of the current profile's bindings.
func (s *Store) ActiveReactions() map[peripheral.InputKey]host.Reaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.builtBy[s.cfg.CurrentProfile]
	snapshot := make(map[peripheral.InputKey]host.Reaction, len(active))
	for k, r := range active {
		snapshot[k] = r
	}
	return snapshot
}

// CurrentProfile returns the active profile name.
func (s *Store) CurrentProfile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.CurrentProfile
}

// SetCurrentProfile switches the active profile.
func (s *Store) SetCurrentProfile(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.builtBy[name]; !ok {
		return fmt.Errorf("profile %q does not exist", name)
	}
	s.cfg.CurrentProfile = name
	return nil
}

// Config returns a copy of the stored configuration.
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Config{
		Profiles:       make(map[string]Profile, len(s.cfg.Profiles)),
		CurrentProfile: s.cfg.CurrentProfile,
	}
	for name, profile := range s.cfg.Profiles {
		p := make(Profile, len(profile))
		for k, v := range profile {
			p[k] = v
		}
		out.Profiles[name] = p
	}
	return out
}
