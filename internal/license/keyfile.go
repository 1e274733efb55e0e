package license

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"clinicapi/internal/config"
)

// KeyFile mirrors the license key into a dotenv secrets file
type KeyFile struct {
	path string
}

// NewKeyFile returns a KeyFile for path. An empty path disables mirroring.
func NewKeyFile(path string) *KeyFile {
	return &KeyFile{path: path}
}

// Path returns the file location
func (f *KeyFile) Path() string {
	if f == nil {
		return ""
	}
	return f.path
}

// ReadKey returns the LICENSE_KEY value. A missing file or variable yields "".
func (f *KeyFile) ReadKey() (string, error) {
	if f == nil || f.path == "" {
		return "", nil
	}
	values, err := godotenv.Read(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", f.path, err)
	}
	return strings.TrimSpace(values[config.LicenseKeyVar]), nil
}

// EnsureKey writes key only when the file holds no LICENSE_KEY value.
// It reports whether the file was changed.
func (f *KeyFile) EnsureKey(key string) (bool, error) {
	if f == nil || f.path == "" {
		return false, nil
	}
	current, err := f.ReadKey()
	if err != nil {
		return false, err
	}
	if current != "" {
		return false, nil
	}
	return true, f.write(key)
}

// RewriteKey replaces the LICENSE_KEY line, appending one if absent
func (f *KeyFile) RewriteKey(key string) error {
	if f == nil || f.path == "" {
		return nil
	}
	return f.write(key)
}

// write replaces every LICENSE_KEY assignment with key and keeps all other
// lines, comments included, as they are
func (f *KeyFile) write(key string) error {
	// Unquoted so the value can be read without a dotenv parser
	line := config.LicenseKeyVar + "=" + key

	data, err := os.ReadFile(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", f.path, err)
	}

	var out bytes.Buffer
	replaced := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		text := scanner.Text()
		if isKeyAssignment(text) {
			if !replaced {
				out.WriteString(line + "\n")
				replaced = true
			}
			continue
		}
		out.WriteString(text + "\n")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", f.path, err)
	}
	if !replaced {
		out.WriteString(line + "\n")
	}

	if err := config.EnsureDir(f.path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".license-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

func isKeyAssignment(line string) bool {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimPrefix(trimmed, "export ")
	name, _, ok := strings.Cut(trimmed, "=")
	return ok && strings.TrimSpace(name) == config.LicenseKeyVar
}
