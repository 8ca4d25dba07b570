package location

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	url := "https://acme.atlassian.net/wiki/download/temp/filestore/8dd92113"
	require.NoError(t, s.Save("confluence", url))

	got, err := s.Load("confluence")
	require.NoError(t, err)
	assert.Equal(t, url, got)

	data, err := os.ReadFile(filepath.Join(dir, "last_backup_file_url_confluence.txt"))
	require.NoError(t, err)
	assert.Equal(t, url, string(data))
}

func TestLoad_TrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	require.NoError(t, os.WriteFile(s.Path("jira"), []byte("  https://x/plugins/servlet/f.zip\n"), 0o644))

	got, err := s.Load("jira")
	require.NoError(t, err)
	assert.Equal(t, "https://x/plugins/servlet/f.zip", got)
}

func TestLoad_Missing(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Load("jira")
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestSave_OverwritesSingleSlot(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, WithFileName("jira", "jira-url.txt"))

	require.NoError(t, s.Save("jira", "https://first"))
	require.NoError(t, s.Save("jira", "https://second"))

	got, err := s.Load("jira")
	require.NoError(t, err)
	assert.Equal(t, "https://second", got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "jira-url.txt", entries[0].Name())
}

func TestServicesAreIndependent(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Save("jira", "https://jira"))

	_, err := s.Load("confluence")
	assert.ErrorIs(t, err, ErrNoRecord)
}
