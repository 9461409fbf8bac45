// Package storage implements the persistence layer: the encrypted share
// store, the signer repository, and the audit repository the Policy Gate
// and Coordinator depend on.
package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100000
	aesKeySize       = 32 // AES-256
	saltSize         = 32
	nonceSize        = 12 // GCM standard
)

// ShareStore is the outbound contract spec.md §6 names: getShare(path) →
// bytes, returning the raw UTF-8 JSON-wrapped key material
// (`{"coreShare": base64, "auxInfo": base64}`) exactly as the DKG driver
// produced it. The coordinator, not this package, parses that JSON.
type ShareStore interface {
	GetShare(ctx context.Context, path string) ([]byte, error)
	SaveShare(ctx context.Context, path string, raw []byte) error
	DeleteShare(ctx context.Context, path string) error
}

// encryptedEnvelope is the on-disk/at-rest wrapper around a share's raw
// bytes: salt and nonce for AES-256-GCM keyed by a PBKDF2-derived key.
type encryptedEnvelope struct {
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	CreatedAt  time.Time `json:"createdAt"`
}

func encryptEnvelope(password, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("storage: generate salt: %w", err)
	}

	key := pbkdf2.Key(password, salt, pbkdf2Iterations, aesKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("storage: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("storage: create gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("storage: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	envelope := encryptedEnvelope{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		CreatedAt:  time.Now(),
	}
	return json.Marshal(envelope)
}

func decryptEnvelope(password, data []byte) ([]byte, error) {
	var envelope encryptedEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("storage: parse envelope: %w", err)
	}

	key := pbkdf2.Key(password, envelope.Salt, pbkdf2Iterations, aesKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("storage: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("storage: create gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, envelope.Nonce, envelope.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: decrypt envelope: %w", err)
	}
	return plaintext, nil
}

// FileShareStore implements ShareStore using one encrypted file per share
// path, password-derived via PBKDF2.
type FileShareStore struct {
	basePath string
	password []byte
	mu       sync.RWMutex
}

// NewFileShareStore creates basePath if missing and returns a store keyed
// on it.
func NewFileShareStore(basePath, password string) (*FileShareStore, error) {
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("storage: create share directory: %w", err)
	}
	return &FileShareStore{basePath: basePath, password: []byte(password)}, nil
}

func (fs *FileShareStore) filename(path string) string {
	return filepath.Join(fs.basePath, filepath.Base(path)+".json")
}

// GetShare implements ShareStore.
func (fs *FileShareStore) GetShare(_ context.Context, path string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(fs.filename(path))
	if err != nil {
		return nil, fmt.Errorf("storage: read share file: %w", err)
	}
	return decryptEnvelope(fs.password, data)
}

// SaveShare implements ShareStore.
func (fs *FileShareStore) SaveShare(_ context.Context, path string, raw []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	envelope, err := encryptEnvelope(fs.password, raw)
	if err != nil {
		return err
	}
	return os.WriteFile(fs.filename(path), envelope, 0600)
}

// DeleteShare implements ShareStore.
func (fs *FileShareStore) DeleteShare(_ context.Context, path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.filename(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete share file: %w", err)
	}
	return nil
}
