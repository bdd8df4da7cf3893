package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/scrypt"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
)

// Secrets file format: [salt][nonce][AES-256-GCM ciphertext+tag] of a JSON map.
const (
	SecretsFileName = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	scryptN         = 32768 // 2^15
	scryptR         = 8
	scryptP         = 1
	keySize         = 32 // AES-256
)

// SecretStore holds decrypted secrets in memory. Get falls back to the
// environment, so a zero SecretStore behaves like plain env lookup.
type SecretStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewSecretStore() *SecretStore {
	return &SecretStore{secrets: make(map[string]string)}
}

// LoadSecretStore decrypts <dataDir>/secrets.json.enc. A missing file yields
// an empty store.
func LoadSecretStore(dataDir, password string) (*SecretStore, error) {
	s := NewSecretStore()
	if !SecretsFileExists(dataDir) {
		return s, nil
	}
	secrets, err := DecryptSecretsFile(dataDir, password)
	if err != nil {
		return nil, err
	}
	s.secrets = secrets
	return s, nil
}

// Get returns the secret from the file first, then the environment.
func (s *SecretStore) Get(name string) (string, error) {
	if s != nil {
		s.mu.RLock()
		value, ok := s.secrets[name]
		s.mu.RUnlock()
		if ok && value != "" {
			return value, nil
		}
	}
	if value := os.Getenv(name); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// Lookup is Get without the error, for optional secrets.
func (s *SecretStore) Lookup(name string) string {
	v, _ := s.Get(name)
	return v
}

func (s *SecretStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secrets == nil {
		s.secrets = make(map[string]string)
	}
	s.secrets[name] = value
}

func (s *SecretStore) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, name)
}

// Names lists stored secret names, sorted. Values are never listed.
func (s *SecretStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.secrets))
	for name := range s.secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save encrypts the current secrets to <dataDir>/secrets.json.enc.
func (s *SecretStore) Save(dataDir, password string) error {
	s.mu.RLock()
	snapshot := make(map[string]string, len(s.secrets))
	for k, v := range s.secrets {
		snapshot[k] = v
	}
	s.mu.RUnlock()
	return EncryptSecretsFile(dataDir, password, snapshot)
}

// SecretsFileExists reports whether dataDir holds a secrets file.
func SecretsFileExists(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, SecretsFileName))
	return err == nil
}

func deriveKey(password, salt []byte) ([]byte, error) {
	key, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return key, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptSecretsFile writes secrets to <dataDir>/secrets.json.enc with mode 0600.
func EncryptSecretsFile(dataDir, password string, secrets map[string]string) error {
	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	key, err := deriveKey(passwordBytes, salt)
	if err != nil {
		return err
	}
	defer zero(key)

	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	defer zero(plaintext)

	gcm, err := newGCM(key)
	if err != nil {
		return err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	fileData := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	fileData = append(fileData, salt...)
	fileData = append(fileData, nonce...)
	fileData = append(fileData, ciphertext...)

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dataDir, err)
	}
	path := filepath.Join(dataDir, SecretsFileName)
	if err := os.WriteFile(path, fileData, 0o600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile reads <dataDir>/secrets.json.enc. A file with looser
// permissions than 0600 is tightened first.
func DecryptSecretsFile(dataDir, password string) (map[string]string, error) {
	path := filepath.Join(dataDir, SecretsFileName)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if info.Mode().Perm() != 0o600 {
		logx.Warnf("secrets file has permissions %04o, resetting to 0600", info.Mode().Perm())
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			return nil, fmt.Errorf("failed to fix file permissions: %w", chmodErr)
		}
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(fileData) < saltSize+nonceSize+16 {
		return nil, fmt.Errorf("secrets file is corrupted or invalid format (too small)")
	}
	salt := fileData[:saltSize]
	nonce := fileData[saltSize : saltSize+nonceSize]
	ciphertext := fileData[saltSize+nonceSize:]

	passwordBytes := []byte(password)
	defer zero(passwordBytes)
	key, err := deriveKey(passwordBytes, salt)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong password or corrupted file)")
	}
	defer zero(plaintext)

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return secrets, nil
}
