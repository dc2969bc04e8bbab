package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	apperrors "github.com/PeterAlaks/lyric-display-app-sub003/internal/errors"
	"github.com/PeterAlaks/lyric-display-app-sub003/internal/storage"
)

// RecordStore is the durable key-value capability behind the
// encrypted backend. *storage.SQLiteStore satisfies it.
type RecordStore interface {
	PutRecord(rec *storage.VaultRecord) error
	GetRecord(id string) (*storage.VaultRecord, error)
	DeleteRecord(id string) error
}

const (
	// kdfIterations is the PBKDF2 work factor for the per-device key.
	kdfIterations = 200000

	// appSalt namespaces derived keys to this application so a key
	// derived here never matches one derived by another system from
	// the same device identifier.
	appSalt = "lyricsync/credential-vault/v1"

	keyLen   = 32 // AES-256
	nonceLen = 12 // GCM standard nonce
)

// encryptedBackend persists credentials as AES-256-GCM ciphertext in
// a record store. The key is derived per device from the device
// identifier and is never stored; a record read back under a
// different device identifier fails authentication and is treated as
// absent by the caller.
type encryptedBackend struct {
	records RecordStore
}

func newEncryptedBackend(records RecordStore) *encryptedBackend {
	return &encryptedBackend{records: records}
}

func deriveKey(deviceID string) []byte {
	return pbkdf2.Key([]byte(deviceID), []byte(appSalt), kdfIterations, keyLen, sha256.New)
}

func (b *encryptedBackend) put(cred *Credential) error {
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	gcm, err := newGCM(cred.DeviceID)
	if err != nil {
		return err
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return apperrors.Wrap(apperrors.CodeVaultCryptoFailed, "generate nonce", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	rec := &storage.VaultRecord{
		ID:        CredentialKey(cred.ClientType, cred.DeviceID),
		DeviceID:  cred.DeviceID,
		IV:        base64.StdEncoding.EncodeToString(nonce),
		Data:      base64.StdEncoding.EncodeToString(ciphertext),
		UpdatedAt: TimeNow(),
	}

	return b.records.PutRecord(rec)
}

func (b *encryptedBackend) get(clientType, deviceID string) (*Credential, error) {
	rec, err := b.records.GetRecord(CredentialKey(clientType, deviceID))
	if err != nil {
		return nil, fmt.Errorf("fetch record: %w", err)
	}
	if rec == nil {
		return nil, nil
	}

	nonce, err := base64.StdEncoding.DecodeString(rec.IV)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(deviceID)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("nonce length %d, want %d", len(nonce), gcm.NonceSize())
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeVaultCryptoFailed, "decrypt credential", err)
	}

	var cred Credential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}

	return &cred, nil
}

func (b *encryptedBackend) clear(clientType, deviceID string) error {
	return b.records.DeleteRecord(CredentialKey(clientType, deviceID))
}

func newGCM(deviceID string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(deviceID))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeVaultCryptoFailed, "init cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeVaultCryptoFailed, "init gcm", err)
	}
	return gcm, nil
}
