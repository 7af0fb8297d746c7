// Package apicache stores host API descriptions on disk so clients can skip
// fetching them on every connection.
//
// An entry is keyed by module name, host version and language version, and
// is only valid while the host's source artifact is unchanged: the artifact
// is copied next to the entry when it is saved and compared on load.
package apicache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
)

var (
	ErrMiss  = errors.New("apicache: no cached entry")
	ErrStale = errors.New("apicache: cached entry is stale")
)

type Key struct {
	Module          string
	HostVersion     string
	LanguageVersion string
}

func (k Key) base() string {
	name := fmt.Sprintf("%s%s_%s", k.Module, k.HostVersion, k.LanguageVersion)
	return strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_").Replace(name)
}

type Store struct {
	Dir string
}

func New(dir string) *Store {
	return &Store{Dir: dir}
}

// DefaultDir returns the per-user cache directory.
func DefaultDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "aliasbridge"), nil
}

// Path returns the file holding the entry for k.
func (s *Store) Path(k Key) string {
	return filepath.Join(s.Dir, k.base()+".br")
}

func (s *Store) artifactPath(k Key, artifact string) string {
	return filepath.Join(s.Dir, k.base()+".artifact"+filepath.Ext(artifact))
}

// Save writes payload as the entry for k, and a copy of artifact when one
// is given. It returns the entry path.
func (s *Store) Save(k Key, artifact string, payload []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("apicache: %w", err)
	}

	path := s.Path(k)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("apicache: %w", err)
	}
	w := brotli.NewWriterLevel(f, brotli.DefaultCompression)
	if _, err := w.Write(payload); err != nil {
		f.Close()
		return "", fmt.Errorf("apicache: write %s: %w", tmp, err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return "", fmt.Errorf("apicache: write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("apicache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("apicache: %w", err)
	}

	if artifact != "" {
		if err := copyFile(artifact, s.artifactPath(k, artifact)); err != nil {
			return "", fmt.Errorf("apicache: copy artifact: %w", err)
		}
	}
	return path, nil
}

// Load returns the entry for k. It fails with ErrMiss when there is none
// and ErrStale when artifact differs from the copy saved with the entry.
func (s *Store) Load(k Key, artifact string) ([]byte, error) {
	f, err := os.Open(s.Path(k))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrMiss
	} else if err != nil {
		return nil, fmt.Errorf("apicache: %w", err)
	}
	defer f.Close()

	if artifact != "" {
		same, err := sameFile(artifact, s.artifactPath(k, artifact))
		if err != nil || !same {
			return nil, ErrStale
		}
	}

	payload, err := io.ReadAll(brotli.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("apicache: read %s: %w", s.Path(k), err)
	}
	return payload, nil
}

// Remove deletes the entry for k and its artifact copy.
func (s *Store) Remove(k Key, artifact string) error {
	err := os.Remove(s.Path(k))
	if artifact != "" {
		os.Remove(s.artifactPath(k, artifact))
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// sameFile reports whether a and b have the same size and modification
// time, or failing that the same contents.
func sameFile(a, b string) (bool, error) {
	sa, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	sb, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if sa.Size() != sb.Size() {
		return false, nil
	}
	if sa.ModTime().Equal(sb.ModTime()) {
		return true, nil
	}

	da, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	db, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(da, db), nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	st, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Chtimes(dst, st.ModTime(), st.ModTime())
}
