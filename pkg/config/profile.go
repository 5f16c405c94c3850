package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/rdelta/rdelta/pkg/wire"
)

// Profile is a named, persisted bundle of Tunables, allowing a caller to
// save a particular algorithm tuning (e.g. "large-files") and recall it by
// name instead of re-specifying every field.
type Profile struct {
	// Name identifies the profile.
	Name string `yaml:"name"`
	// Tunables is the bundle of algorithm choices this profile captures.
	Tunables Tunables `yaml:"tunables"`
}

// loadAndUnmarshalYAML reads the file at path and strictly decodes it into
// value, mirroring the load/unmarshal split this codebase uses elsewhere
// for its encoding helpers.
func loadAndUnmarshalYAML(path string, value interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return fmt.Errorf("unable to load file: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(value); err != nil {
		return fmt.Errorf("unable to unmarshal data: %w", err)
	}
	return nil
}

// marshalAndSaveYAML marshals value to YAML and writes it atomically to
// path (temporary file plus rename), with owner-only permissions.
func marshalAndSaveYAML(path string, value interface{}) error {
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("unable to marshal profile: %w", err)
	}

	temporary, err := os.CreateTemp(filepath.Dir(path), ".rdelta-profile-*")
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(temporary.Name())
		return fmt.Errorf("unable to write temporary file: %w", err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporary.Name())
		return fmt.Errorf("unable to close temporary file: %w", err)
	}
	if err := os.Chmod(temporary.Name(), 0600); err != nil {
		os.Remove(temporary.Name())
		return fmt.Errorf("unable to set profile permissions: %w", err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		os.Remove(temporary.Name())
		return fmt.Errorf("unable to rename profile into place: %w", err)
	}
	return nil
}

// LoadProfile loads a profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	var p Profile
	if err := loadAndUnmarshalYAML(path, &p); err != nil {
		return nil, errors.Wrap(err, "unable to load profile")
	}
	return &p, nil
}

// Save persists the profile to a YAML file at path, creating or
// overwriting it.
func (p *Profile) Save(path string) error {
	if err := marshalAndSaveYAML(path, p); err != nil {
		return errors.Wrap(err, "unable to save profile")
	}
	return nil
}

// LoadTunableOverrides reads a dotenv-style file (if present) describing
// tunable overrides as RDELTA_WEAK, RDELTA_STRONG, RDELTA_BLOCK_LENGTH, and
// RDELTA_STRONG_LENGTH variables, layers the current process environment on
// top (taking precedence), and applies any recognized keys on top of base.
// A missing path is treated as an empty override set, not an error.
func LoadTunableOverrides(path string, base Tunables) (Tunables, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return base, fmt.Errorf("unable to load environment file (%s): %w", path, err)
		}
		env = map[string]string{}
	}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}

	result := base
	if v, ok := env["RDELTA_WEAK"]; ok {
		switch v {
		case "classic":
			result.Weak = wire.WeakClassic
		case "rabinkarp":
			result.Weak = wire.WeakRabinKarp
		default:
			return base, fmt.Errorf("unrecognized RDELTA_WEAK value: %s", v)
		}
	}
	if v, ok := env["RDELTA_STRONG"]; ok {
		switch v {
		case "md4":
			result.Strong = wire.StrongMD4
		case "blake2b":
			result.Strong = wire.StrongBlake2b
		default:
			return base, fmt.Errorf("unrecognized RDELTA_STRONG value: %s", v)
		}
	}
	if v, ok := env["RDELTA_BLOCK_LENGTH"]; ok {
		n, err := parseUint(v)
		if err != nil {
			return base, fmt.Errorf("invalid RDELTA_BLOCK_LENGTH: %w", err)
		}
		result.BlockLength = n
	}
	if v, ok := env["RDELTA_STRONG_LENGTH"]; ok {
		n, err := parseUint(v)
		if err != nil {
			return base, fmt.Errorf("invalid RDELTA_STRONG_LENGTH: %w", err)
		}
		result.StrongLength = int(n)
	}
	return result, nil
}

func parseUint(s string) (uint64, error) {
	var n uint64
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a number: %s", s)
		}
		n = n*10 + uint64(c-'0')
	}
	return n, nil
}
