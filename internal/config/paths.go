package config

import (
	"os"
	"path/filepath"
)

// ResolvePath anchors a relative path at Paths.BaseDir. Absolute paths and an
// empty base dir leave the path as given, relative to the working directory.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Paths.BaseDir == "" {
		return p
	}
	return filepath.Join(c.Paths.BaseDir, p)
}

// SecretsFilePath returns the resolved license secrets file path
func (c *Config) SecretsFilePath() string {
	return c.ResolvePath(c.License.SecretsFile)
}

// LogFilePath returns the resolved log file path
func (c *Config) LogFilePath() string {
	return c.ResolvePath(c.Logging.FilePath)
}

// EnsureDir creates the parent directory of path when it is missing
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
