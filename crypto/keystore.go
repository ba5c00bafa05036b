package crypto

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/google/uuid"
)

// SaveToKeystore writes the provided private key to an Ethereum v3 keystore file at the given path.
// If the parent directory does not exist it will be created with 0700 permissions.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Operator keys use the light scrypt profile.
	ks := &keystore.Key{
		Id:         uuid.New(),
		Address:    key.PubKey().Address().Array(),
		PrivateKey: key.PrivateKey,
	}
	encoded, err := keystore.EncryptKey(ks, passphrase, keystore.LightScryptN, keystore.LightScryptP)
	if err != nil {
		return fmt.Errorf("crypto: encrypt keystore: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o600); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFromKeystore decrypts an Ethereum v3 keystore file using the supplied passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}

	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}

	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}

// KeystoreAddress reads the plaintext address recorded in a keystore file
// without decrypting the key material.
func KeystoreAddress(path string) ([20]byte, error) {
	var out [20]byte
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	var header struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(keyJSON, &header); err != nil {
		return out, fmt.Errorf("crypto: parse keystore: %w", err)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(header.Address), "0x"))
	if err != nil || len(raw) != AddressLength {
		return out, fmt.Errorf("crypto: keystore address malformed")
	}
	copy(out[:], raw)
	return out, nil
}
