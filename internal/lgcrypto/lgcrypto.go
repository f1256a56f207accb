// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lgcrypto implements the session key derivation and frame
// encryption used by LG network control.
package lgcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// BlockSize is the AES block size and the length of the frame IV.
	BlockSize = aes.BlockSize

	// ResponseTerminator ends every plaintext reply sent by the television.
	ResponseTerminator = '\n'
)

var (
	// ErrTruncated is returned for frames shorter than two blocks or not block aligned.
	ErrTruncated = errors.New("lgcrypto: truncated frame")

	// ErrBadPadding is returned when a decrypted payload is not PKCS7 padded.
	ErrBadPadding = errors.New("lgcrypto: bad padding")
)

// vendorSalt is the fixed salt shipped with LG network control firmware.
var vendorSalt = []byte{
	99, 97, 184, 14, 155, 220, 166, 99, 141, 7, 32, 242, 204, 86, 143, 185,
}

// KeyParams configures PBKDF2 key derivation.
type KeyParams struct {
	Salt       []byte
	Iterations int
	KeyLength  int
}

// DefaultKeyParams returns the parameters LG televisions expect.
func DefaultKeyParams() KeyParams {
	salt := make([]byte, len(vendorSalt))
	copy(salt, vendorSalt)
	return KeyParams{
		Salt:       salt,
		Iterations: 1 << 14,
		KeyLength:  16,
	}
}

// DeriveSessionKey stretches the pairing secret into an AES key.
// The client id is appended to the salt; an empty id yields the vendor key.
func DeriveSessionKey(secret, clientID string, params KeyParams) []byte {
	salt := make([]byte, 0, len(params.Salt)+len(clientID))
	salt = append(salt, params.Salt...)
	salt = append(salt, clientID...)
	return pbkdf2.Key([]byte(secret), salt, params.Iterations, params.KeyLength, sha256.New)
}

// Encrypt seals plaintext under key with a fresh random IV.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	iv := make([]byte, BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}
	return EncryptWithIV(key, iv, plaintext)
}

// EncryptWithIV builds the frame E_ecb(iv) || E_cbc(iv, pkcs7(plaintext)).
func EncryptWithIV(key, iv, plaintext []byte) ([]byte, error) {
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", BlockSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := pad(plaintext)
	frame := make([]byte, BlockSize+len(padded))
	sealIV(block, frame[:BlockSize], iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(frame[BlockSize:], padded)
	return frame, nil
}

// Decrypt opens a frame produced by Encrypt or by the television and
// removes the PKCS7 padding. Reply terminators are left in place.
func Decrypt(key, frame []byte) ([]byte, error) {
	plain, err := open(key, frame)
	if err != nil {
		return nil, err
	}
	unpadded, ok := unpad(plain)
	if !ok {
		return nil, ErrBadPadding
	}
	return unpadded, nil
}

func open(key, frame []byte) ([]byte, error) {
	if len(frame) < 2*BlockSize || len(frame)%BlockSize != 0 {
		return nil, ErrTruncated
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, BlockSize)
	openIV(block, iv, frame[:BlockSize])

	plain := make([]byte, len(frame)-BlockSize)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, frame[BlockSize:])
	return plain, nil
}

// sealIV encrypts the single IV block in ECB mode. Only the IV is ever
// handled this way; payload blocks always go through CBC.
func sealIV(block cipher.Block, dst, iv []byte) {
	block.Encrypt(dst, iv)
}

func openIV(block cipher.Block, dst, sealed []byte) {
	block.Decrypt(dst, sealed)
}

func pad(data []byte) []byte {
	n := BlockSize - len(data)%BlockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(data []byte) ([]byte, bool) {
	if len(data) == 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > BlockSize || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
