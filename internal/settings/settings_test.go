package settings

import (
	"testing"

	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerr "github.com/kittclouds/karta/pkg/errors"
)

func newMemStore(t *testing.T) *Store {
	t.Helper()
	fs, err := mem.NewFS()
	require.NoError(t, err)
	return NewStore(fs, "", nil)
}

func TestLoadMissingFile(t *testing.T) {
	s := newMemStore(t)

	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Settings{}, st)
}

func TestRoundTrip(t *testing.T) {
	s := newMemStore(t)

	require.NoError(t, s.SetLastContext("ctx-1", "/root/a"))

	// A second store on the same FS sees the file.
	again := NewStore(s.FS, DefaultFile, nil)
	st, err := again.Load()
	require.NoError(t, err)
	assert.Equal(t, Settings{LastContextID: "ctx-1", LastContextPath: "/root/a"}, st)
}

func TestLoadCorruptFile(t *testing.T) {
	s := newMemStore(t)
	require.NoError(t, hackpadfs.WriteFullFile(s.FS, s.Path, []byte("lastContextId: [unterminated"), 0o644))

	_, err := s.Load()
	require.Error(t, err)
	assert.True(t, kerr.HasCode(err, kerr.CodeSettingsReadFailure))

	// SetLastContext recovers by rewriting the file.
	require.NoError(t, s.SetLastContext("ctx-2", "/root/b"))
	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "ctx-2", st.LastContextID)
}

func TestOSStore(t *testing.T) {
	dir := t.TempDir()

	s, err := NewOSStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(Settings{LastContextID: "x", LastContextPath: "/root/x"}))

	reopened, err := NewOSStore(dir, nil)
	require.NoError(t, err)
	st, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, "x", st.LastContextID)
}
