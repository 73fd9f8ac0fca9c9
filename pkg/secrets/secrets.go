// Package secrets stores the monitoring-bridge auth token in the operating
// system's native keyring, with automatic fallback to file-based storage
// when no keyring service is available.
package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"

	"github.com/zalando/go-keyring"

	"github.com/tollgate/tollgate/common"
)

// Store persists the bridge token.
type Store interface {
	SetToken(token string) error
	Token() (string, error)
	DeleteToken() error
}

// ErrNoToken is returned when no token has been stored.
var ErrNoToken = errors.New("no bridge token stored")

// Open returns the keyring-backed store when a keyring service responds,
// falling back to file storage under configDir otherwise.
func Open(configDir string) Store {
	k := NewKeyring()
	if _, err := k.Token(); err == nil || errors.Is(err, ErrNoToken) {
		return k
	}
	return NewFileStore(configDir)
}

// GenerateToken creates a fresh random token.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// BridgeToken resolves the token the daemon should use: the environment
// variable wins, then the store. An empty result disables the bridge.
func BridgeToken(s Store) string {
	if token := os.Getenv(common.BridgeTokenEnv); token != "" {
		return token
	}
	token, err := s.Token()
	if err != nil {
		return ""
	}
	return token
}

// Keyring stores the token in the OS keyring service.
type Keyring struct {
	Service string
	Field   string
}

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
)

func NewKeyring() *Keyring {
	return &Keyring{
		Service: "tollgate",
		Field:   "bridge-token",
	}
}

func (k *Keyring) SetToken(token string) error {
	return keyringSet(k.Service, k.Field, token)
}

func (k *Keyring) Token() (string, error) {
	token, err := keyringGet(k.Service, k.Field)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoToken
	}
	return token, err
}

func (k *Keyring) DeleteToken() error {
	return keyringDelete(k.Service, k.Field)
}

var _ Store = (*Keyring)(nil)
