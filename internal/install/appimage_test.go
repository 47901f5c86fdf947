//go:build !windows

package install

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/bundle-updater/internal/manifest"
)

// TestInstallAppImageReplacesTarget swaps the AppImage in place and
// leaves it executable with no .old residue.
func TestInstallAppImageReplacesTarget(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "demo.AppImage")
	require.NoError(t, os.WriteFile(target, []byte("old appimage"), 0o755))

	before, err := os.Stat(target)
	require.NoError(t, err)

	artifact := buildTarGz(t, []tarEntry{
		{name: "demo_2.0.0_amd64.AppImage", content: []byte("new appimage"), mode: 0o755},
	})

	err = installAppImage(context.Background(), &Request{
		Format:         manifest.FormatAppImage,
		Artifact:       artifact,
		ExecutablePath: target,
	})
	require.NoError(t, err)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, []byte("new appimage"), content)

	after, err := os.Stat(target)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), after.Mode().Perm())
	require.False(t, os.SameFile(before, after), "replacement must land on a fresh inode")

	_, err = os.Stat(target + ".old")
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestInstallAppImageBadArchive ensures a corrupt artifact leaves the
// target untouched.
func TestInstallAppImageBadArchive(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "demo.AppImage")
	require.NoError(t, os.WriteFile(target, []byte("old appimage"), 0o755))

	err := installAppImage(context.Background(), &Request{
		Format:         manifest.FormatAppImage,
		Artifact:       []byte("garbage"),
		ExecutablePath: target,
	})
	require.Error(t, err)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, []byte("old appimage"), content)
}
