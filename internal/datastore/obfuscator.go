package datastore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/tphakala/evalsync/internal/errors"
)

// Obfuscator transforms the registry credential on its way to and from
// storage.
type Obfuscator interface {
	Conceal(plain string) (string, error)
	Reveal(stored string) (string, error)
}

// Base64Obfuscator stores the credential as standard base64. It only keeps
// the credential out of casual view of the raw blob; anyone who can read
// the store can decode it.
type Base64Obfuscator struct{}

func (Base64Obfuscator) Conceal(plain string) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(plain)), nil
}

func (Base64Obfuscator) Reveal(stored string) (string, error) {
	plain, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", credentialError(err, "decode_base64")
	}
	return string(plain), nil
}

// SealedPrefix marks credentials sealed by SealedObfuscator.
const SealedPrefix = "sealed:v1:"

const hkdfInfo = "evalsync registry credential v1"

// SealedObfuscator encrypts the credential with XChaCha20-Poly1305 under a
// key derived from a sealing secret held in process configuration. Values
// without the sealed prefix are decoded as legacy base64 so an existing
// store migrates on its next settings save.
type SealedObfuscator struct {
	key    []byte
	legacy Base64Obfuscator
}

// NewSealedObfuscator derives the sealing key from secret.
func NewSealedObfuscator(secret string) (*SealedObfuscator, error) {
	if secret == "" {
		return nil, errors.Newf("sealing secret must not be empty").
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, credentialError(err, "derive_key")
	}
	return &SealedObfuscator{key: key}, nil
}

func (s *SealedObfuscator) Conceal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", credentialError(err, "init_cipher")
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", credentialError(err, "generate_nonce")
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), []byte(SettingsSlot))
	return SealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *SealedObfuscator) Reveal(stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, SealedPrefix)
	if !ok {
		return s.legacy.Reveal(stored)
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", credentialError(err, "decode_sealed")
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", credentialError(err, "init_cipher")
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", credentialError(errors.NewStd("sealed credential is truncated"), "open_sealed")
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(SettingsSlot))
	if err != nil {
		return "", credentialError(err, "open_sealed")
	}
	return string(plain), nil
}

func credentialError(err error, operation string) error {
	return errors.New(err).
		Component(component).
		Category(errors.CategoryCredential).
		Context("operation", operation).
		Build()
}
