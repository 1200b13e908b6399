package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	return p
}

func TestResolveArtifactExplicitPreference(t *testing.T) {
	dir := t.TempDir()
	want := touch(t, dir, "custom.jar")
	touch(t, dir, "server.jar")

	got, err := ResolveArtifact(dir, "custom.jar")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestResolveArtifactStalePreferenceFallsBack(t *testing.T) {
	dir := t.TempDir()
	want := touch(t, dir, "server.jar")

	got, err := ResolveArtifact(dir, "gone.jar")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestResolveArtifactPrefersServerName(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "aaa.jar")
	want := touch(t, dir, "minecraft_server.jar")

	got, err := ResolveArtifact(dir, "")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestResolveArtifactLexicographicFallback(t *testing.T) {
	dir := t.TempDir()
	want := touch(t, dir, "alpha.jar")
	touch(t, dir, "beta.jar")
	touch(t, dir, "readme.txt")

	got, err := ResolveArtifact(dir, "")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestResolveArtifactEmptyDir(t *testing.T) {
	_, err := ResolveArtifact(t.TempDir(), "")
	require.ErrorIs(t, err, ErrNoLaunchArtifact)
}
