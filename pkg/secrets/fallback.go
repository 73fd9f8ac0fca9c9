package secrets

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	tokenFileName = "bridge.token"
	tokenFileMode = 0600
)

// FileStore keeps the token in a 0600 file for systems without a keyring
// service (headless servers, containers).
type FileStore struct {
	configDir string
}

func NewFileStore(configDir string) *FileStore {
	return &FileStore{configDir: configDir}
}

func (f *FileStore) tokenPath() string {
	return filepath.Join(f.configDir, tokenFileName)
}

// SetToken writes the token atomically: temp file, chmod, rename.
func (f *FileStore) SetToken(token string) error {
	if err := os.MkdirAll(f.configDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(f.configDir, ".bridge.token.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.WriteString(token); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write token: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, tokenFileMode); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, f.tokenPath()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename token file: %w", err)
	}
	return nil
}

func (f *FileStore) Token() (string, error) {
	data, err := os.ReadFile(f.tokenPath())
	if os.IsNotExist(err) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *FileStore) DeleteToken() error {
	if err := os.Remove(f.tokenPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

var _ Store = (*FileStore)(nil)
