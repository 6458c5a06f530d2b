package signer

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Decrypter recovers a plaintext key from its encrypted blob.
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// ReadCiphertext reads a base64-encoded key blob from path.
func ReadCiphertext(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	return blob, nil
}

// ActivateEncrypted decrypts ciphertext with d and activates sm with the
// result. The plaintext is wiped before returning.
func ActivateEncrypted(ctx context.Context, sm *SessionManager, d Decrypter, ciphertext []byte, maxValue *uint256.Int) error {
	key, err := d.Decrypt(ctx, ciphertext)
	if err != nil {
		return fmt.Errorf("decrypt session key: %w", err)
	}
	defer memguard.WipeBytes(key)
	return sm.Activate(key, maxValue)
}

// ActivateHex activates sm with a hex-encoded private key.
func ActivateHex(sm *SessionManager, hexKey string, maxValue *uint256.Int) error {
	hexKey = strings.TrimSpace(hexKey)
	if !strings.HasPrefix(hexKey, "0x") {
		hexKey = "0x" + hexKey
	}
	key, err := hexutil.Decode(hexKey)
	if err != nil {
		return fmt.Errorf("decode hex key: %w", err)
	}
	defer memguard.WipeBytes(key)
	return sm.Activate(key, maxValue)
}
