// Package credentials resolves the api key and project used to open the
// notification stream, and persists them between runs.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var (
	// ErrNoAPIKey is returned by Resolve when neither the explicit
	// credentials nor the provider supply an api key.
	ErrNoAPIKey = errors.New("no api key configured")

	// ErrNotFound is returned by a Provider that has nothing stored.
	ErrNotFound = errors.New("no stored credentials")
)

// Credentials identify the caller to the notification stream and the REST
// API. Project may be empty.
type Credentials struct {
	APIKey  string `toml:"api_key"`
	Project string `toml:"project"`
}

// Provider supplies fallback credentials.
type Provider interface {
	Credentials() (Credentials, error)
}

// Resolve fills the empty fields of explicit from p. It fails when no api
// key can be found; an empty project is allowed.
func Resolve(explicit Credentials, p Provider) (Credentials, error) {
	out := Credentials{
		APIKey:  strings.TrimSpace(explicit.APIKey),
		Project: strings.TrimSpace(explicit.Project),
	}

	if (out.APIKey == "" || out.Project == "") && p != nil {
		stored, err := p.Credentials()
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return Credentials{}, fmt.Errorf("load stored credentials: %w", err)
		default:
			if out.APIKey == "" {
				out.APIKey = strings.TrimSpace(stored.APIKey)
			}
			if out.Project == "" {
				out.Project = strings.TrimSpace(stored.Project)
			}
		}
	}

	if out.APIKey == "" {
		return Credentials{}, ErrNoAPIKey
	}
	return out, nil
}

// Static is a Provider returning fixed credentials.
type Static Credentials

func (s Static) Credentials() (Credentials, error) {
	if s.APIKey == "" && s.Project == "" {
		return Credentials{}, ErrNotFound
	}
	return Credentials(s), nil
}

// FileStore keeps credentials in a small TOML file, readable only by the
// owner.
type FileStore struct {
	Path string
}

// DefaultPath returns the credentials file under the user config dir.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".", "credentials.toml")
	}
	return filepath.Join(dir, "task-tracker", "credentials.toml")
}

func (s FileStore) Credentials() (Credentials, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Credentials{}, ErrNotFound
	}
	if err != nil {
		return Credentials{}, err
	}

	var c Credentials
	if err := toml.Unmarshal(b, &c); err != nil {
		return Credentials{}, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	if c.APIKey == "" && c.Project == "" {
		return Credentials{}, ErrNotFound
	}
	return c, nil
}

// Save writes c to the store, creating parent directories as needed.
func (s FileStore) Save(c Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	b, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

// Clear removes the stored credentials. A missing file is not an error.
func (s FileStore) Clear() error {
	err := os.Remove(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
