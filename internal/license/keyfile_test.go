package license

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicapi/internal/shared/testutil"
)

const otherKey = "FEDCBA9876543210FEDCBA9876543210FEDCBA9876543210"

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestKeyFileReadKey(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		key, err := NewKeyFile(filepath.Join(t.TempDir(), "absent.env")).ReadKey()
		require.NoError(t, err)
		assert.Empty(t, key)
	})

	t.Run("quoted value", func(t *testing.T) {
		path := writeFile(t, "PORT=5000\nLICENSE_KEY=\""+testutil.TestLicenseKey+"\"\n")
		key, err := NewKeyFile(path).ReadKey()
		require.NoError(t, err)
		assert.Equal(t, testutil.TestLicenseKey, key)
	})

	t.Run("disabled", func(t *testing.T) {
		var f *KeyFile
		key, err := f.ReadKey()
		require.NoError(t, err)
		assert.Empty(t, key)
	})
}

func TestKeyFileEnsureKey(t *testing.T) {
	t.Run("creates the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", ".env")
		f := NewKeyFile(path)

		changed, err := f.EnsureKey(testutil.TestLicenseKey)
		require.NoError(t, err)
		assert.True(t, changed)

		key, err := f.ReadKey()
		require.NoError(t, err)
		assert.Equal(t, testutil.TestLicenseKey, key)
	})

	t.Run("appends and keeps other lines", func(t *testing.T) {
		path := writeFile(t, "# clinic\nCLINIC_SERVER_PORT=5000\n")
		changed, err := NewKeyFile(path).EnsureKey(testutil.TestLicenseKey)
		require.NoError(t, err)
		assert.True(t, changed)

		assert.Equal(t, "# clinic\nCLINIC_SERVER_PORT=5000\nLICENSE_KEY="+testutil.TestLicenseKey+"\n", readFile(t, path))
	})

	t.Run("fills an empty assignment", func(t *testing.T) {
		path := writeFile(t, "LICENSE_KEY=\nOTHER=1\n")
		changed, err := NewKeyFile(path).EnsureKey(testutil.TestLicenseKey)
		require.NoError(t, err)
		assert.True(t, changed)

		key, err := NewKeyFile(path).ReadKey()
		require.NoError(t, err)
		assert.Equal(t, testutil.TestLicenseKey, key)
		assert.Contains(t, readFile(t, path), "OTHER=1")
	})

	t.Run("never overwrites", func(t *testing.T) {
		path := writeFile(t, "LICENSE_KEY="+otherKey+"\n")
		changed, err := NewKeyFile(path).EnsureKey(testutil.TestLicenseKey)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, "LICENSE_KEY="+otherKey+"\n", readFile(t, path))
	})
}

func TestKeyFileRewriteKey(t *testing.T) {
	t.Run("replaces in place", func(t *testing.T) {
		path := writeFile(t, "A=1\nexport LICENSE_KEY="+otherKey+"\nB=2\nLICENSE_KEY=stale\n")
		require.NoError(t, NewKeyFile(path).RewriteKey(testutil.TestLicenseKey))

		assert.Equal(t, "A=1\nLICENSE_KEY="+testutil.TestLicenseKey+"\nB=2\n", readFile(t, path))
	})

	t.Run("appends when absent", func(t *testing.T) {
		path := writeFile(t, "A=1\n")
		require.NoError(t, NewKeyFile(path).RewriteKey(testutil.TestLicenseKey))

		assert.Equal(t, "A=1\nLICENSE_KEY="+testutil.TestLicenseKey+"\n", readFile(t, path))
	})

	t.Run("restricts permissions", func(t *testing.T) {
		path := writeFile(t, "")
		require.NoError(t, NewKeyFile(path).RewriteKey(testutil.TestLicenseKey))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("a directory path fails", func(t *testing.T) {
		assert.Error(t, NewKeyFile(t.TempDir()).RewriteKey(testutil.TestLicenseKey))
	})
}
