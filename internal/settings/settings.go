// Package settings persists per-user preferences such as the last viewed
// context. Files live on a hackpadfs.FS so tests and embedded builds can
// swap in an in-memory filesystem.
package settings

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hack-pad/hackpadfs"
	hpos "github.com/hack-pad/hackpadfs/os"
	"gopkg.in/yaml.v3"

	kerr "github.com/kittclouds/karta/pkg/errors"
)

// DefaultFile is the settings file name inside the settings directory.
const DefaultFile = "settings.yaml"

// Settings is the persisted preference set.
type Settings struct {
	LastContextID   string `yaml:"lastContextId,omitempty"`
	LastContextPath string `yaml:"lastContextPath,omitempty"`
}

// Store reads and writes Settings as YAML.
type Store struct {
	FS   hackpadfs.FS
	Path string

	mu     sync.Mutex
	logger *slog.Logger
}

// NewStore creates a settings store for the file at path on fsys.
func NewStore(fsys hackpadfs.FS, path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = DefaultFile
	}
	return &Store{FS: fsys, Path: path, logger: logger}
}

// NewOSStore opens (creating if needed) a settings directory on the host
// filesystem.
func NewOSStore(dir string, logger *slog.Logger) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, kerr.Wrapf(err, kerr.CodeSettingsReadFailure, "resolving settings dir %s", dir)
	}
	root := hpos.NewFS()
	rel := strings.TrimPrefix(filepath.ToSlash(abs), "/")
	if err := hackpadfs.MkdirAll(root, rel, 0o755); err != nil {
		return nil, kerr.Wrapf(err, kerr.CodeSettingsWriteFailure, "creating settings dir %s", abs)
	}
	sub, err := root.Sub(rel)
	if err != nil {
		return nil, kerr.Wrapf(err, kerr.CodeSettingsReadFailure, "opening settings dir %s", abs)
	}
	return NewStore(sub, DefaultFile, logger), nil
}

// Load reads the settings file. A missing file yields zero Settings.
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Save overwrites the settings file.
func (s *Store) Save(st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(st)
}

// SetLastContext records the last viewed context.
func (s *Store) SetLastContext(id, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		s.logger.Warn("discarding unreadable settings", "path", s.Path, "error", err)
		st = Settings{}
	}
	if st.LastContextID == id && st.LastContextPath == path {
		return nil
	}
	st.LastContextID = id
	st.LastContextPath = path
	return s.saveLocked(st)
}

func (s *Store) loadLocked() (Settings, error) {
	var st Settings
	content, err := hackpadfs.ReadFile(s.FS, s.Path)
	if kerr.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, kerr.Wrapf(err, kerr.CodeSettingsReadFailure, "reading %s", s.Path)
	}
	if err := yaml.Unmarshal(content, &st); err != nil {
		return Settings{}, kerr.Wrapf(err, kerr.CodeSettingsReadFailure, "parsing %s", s.Path)
	}
	return st, nil
}

func (s *Store) saveLocked(st Settings) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return kerr.Wrap(err, kerr.CodeSettingsWriteFailure, "encoding settings")
	}
	if err := hackpadfs.WriteFullFile(s.FS, s.Path, data, 0o644); err != nil {
		return kerr.Wrapf(err, kerr.CodeSettingsWriteFailure, "writing %s", s.Path)
	}
	return nil
}
