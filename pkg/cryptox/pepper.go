package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

var (
	pepperMu sync.RWMutex
	pepper   string
)

// SetPepper installs an in-memory pepper. Used by tests and by LoadPepper.
func SetPepper(p string) {
	pepperMu.Lock()
	pepper = p
	pepperMu.Unlock()
}

func currentPepper() string {
	pepperMu.RLock()
	defer pepperMu.RUnlock()
	return pepper
}

// LoadPepper reads the pepper from path, generating and persisting a new one
// when the file does not exist yet. Losing this file invalidates every
// argon2id hash.
func LoadPepper(path string) error {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create pepper dir: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		SetPepper(string(data))
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("read pepper: %w", err)
	}

	raw := make([]byte, keyLength)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate pepper: %w", err)
	}
	p := base64.RawURLEncoding.EncodeToString(raw)
	if err := os.WriteFile(path, []byte(p), 0o600); err != nil {
		return fmt.Errorf("write pepper: %w", err)
	}
	SetPepper(p)
	return nil
}
