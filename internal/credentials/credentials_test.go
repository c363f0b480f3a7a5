package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingProvider struct{ err error }

func (f failingProvider) Credentials() (Credentials, error) { return Credentials{}, f.err }

func TestResolve_ExplicitWins(t *testing.T) {
	got, err := Resolve(Credentials{APIKey: "explicit", Project: "p1"}, Static{APIKey: "stored", Project: "p2"})
	require.NoError(t, err)
	assert.Equal(t, Credentials{APIKey: "explicit", Project: "p1"}, got)
}

func TestResolve_FallsBackPerField(t *testing.T) {
	got, err := Resolve(Credentials{Project: "mine"}, Static{APIKey: "stored", Project: "theirs"})
	require.NoError(t, err)
	assert.Equal(t, Credentials{APIKey: "stored", Project: "mine"}, got)
}

func TestResolve_NoKeyIsAnError(t *testing.T) {
	_, err := Resolve(Credentials{Project: "p"}, nil)
	require.ErrorIs(t, err, ErrNoAPIKey)

	_, err = Resolve(Credentials{}, Static{})
	require.ErrorIs(t, err, ErrNoAPIKey)
}

func TestResolve_ProviderFailure(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := Resolve(Credentials{}, failingProvider{err: boom})
	require.ErrorIs(t, err, boom)
}

func TestResolve_EmptyProjectAllowed(t *testing.T) {
	got, err := Resolve(Credentials{APIKey: " key "}, nil)
	require.NoError(t, err)
	assert.Equal(t, "key", got.APIKey)
	assert.Empty(t, got.Project)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.toml")
	store := FileStore{Path: path}

	_, err := store.Credentials()
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(Credentials{APIKey: "k", Project: "alpha"}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Credentials()
	require.NoError(t, err)
	assert.Equal(t, Credentials{APIKey: "k", Project: "alpha"}, got)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	_, err = store.Credentials()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	require.NoError(t, os.WriteFile(path, []byte("api_key = "), 0o600))

	_, err := FileStore{Path: path}.Credentials()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
