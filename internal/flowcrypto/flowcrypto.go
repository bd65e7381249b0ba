// Package flowcrypto implements the WhatsApp Flow hybrid-encryption
// contract: RSA-OAEP key unwrap, AES-128-GCM payload decryption, the
// bit-flipped-IV re-encryption of responses, and HMAC-SHA256 request
// signature verification.
//
// The same symmetric key and IV recovered during decryption must be reused
// (with every IV bit flipped) to encrypt the response; the WhatsApp client
// rejects anything else.
package flowcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AgendaBarber/AgendaFlow/internal/models"
	"github.com/youmark/pkcs8"
)

// gcmTagSize is the length of the AES-GCM authentication tag appended to
// encrypted_flow_data.
const gcmTagSize = 16

// Sentinel errors for the codec. Callers must not leak the wrapped detail
// into HTTP responses.
var (
	// ErrDecryption covers any RSA/AES/auth-tag/JSON failure while opening a
	// request. Decryption failures are fatal for the request; retrying with
	// the same key material is never safe.
	ErrDecryption = errors.New("flow payload decryption failed")
	// ErrEncryption covers any cipher failure while sealing a response.
	ErrEncryption = errors.New("flow response encryption failed")
	// ErrPrivateKey covers private key parse/decrypt failures at startup.
	ErrPrivateKey = errors.New("invalid private key")
)

// Material is the symmetric key material recovered while decrypting a
// request, needed later to encrypt the response.
type Material struct {
	AESKey []byte
	IV     []byte
}

// LoadPrivateKey parses an RSA private key from PEM data. PKCS#8 and PKCS#1
// encodings are accepted; a non-empty passphrase selects encrypted PKCS#8.
func LoadPrivateKey(pemData []byte, passphrase string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrPrivateKey)
	}

	if passphrase != "" {
		key, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPrivateKey, err)
		}
		return key, nil
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrPrivateKey)
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrivateKey, err)
	}
	return key, nil
}

// Decrypt opens an encrypted Flow request. It unwraps the AES key with
// RSA-OAEP-SHA256, decrypts encrypted_flow_data with AES-GCM using the IV
// length the client sent, and parses the plaintext as JSON.
//
// The returned Material must be used to encrypt the response for this
// request.
func Decrypt(env models.EncryptedEnvelope, key *rsa.PrivateKey) (map[string]interface{}, Material, error) {
	wrappedKey, err := base64.StdEncoding.DecodeString(env.EncryptedAESKey)
	if err != nil {
		return nil, Material{}, fmt.Errorf("%w: bad encrypted_aes_key encoding", ErrDecryption)
	}
	flowData, err := base64.StdEncoding.DecodeString(env.EncryptedFlowData)
	if err != nil {
		return nil, Material{}, fmt.Errorf("%w: bad encrypted_flow_data encoding", ErrDecryption)
	}
	iv, err := base64.StdEncoding.DecodeString(env.InitialVector)
	if err != nil {
		return nil, Material{}, fmt.Errorf("%w: bad initial_vector encoding", ErrDecryption)
	}
	if len(flowData) < gcmTagSize {
		return nil, Material{}, fmt.Errorf("%w: flow data shorter than auth tag", ErrDecryption)
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, key, wrappedKey, nil)
	if err != nil {
		slog.Debug("flowcrypto.Decrypt: RSA-OAEP unwrap failed", "error", err)
		return nil, Material{}, fmt.Errorf("%w: key unwrap", ErrDecryption)
	}

	plaintext, err := gcmOpen(aesKey, iv, flowData)
	if err != nil {
		slog.Debug("flowcrypto.Decrypt: AES-GCM open failed", "error", err)
		return nil, Material{}, fmt.Errorf("%w: payload", ErrDecryption)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, Material{}, fmt.Errorf("%w: plaintext is not valid JSON", ErrDecryption)
	}

	return payload, Material{AESKey: aesKey, IV: iv}, nil
}

// Encrypt seals a response object with the request's key material. The IV
// has every bit flipped relative to the request IV; the result is the
// base64 of ciphertext||tag and must be sent as a bare text/plain body.
func Encrypt(response interface{}, mat Material) (string, error) {
	plaintext, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("%w: marshal response", ErrEncryption)
	}

	block, err := aes.NewCipher(mat.AESKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(mat.IV))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	sealed := gcm.Seal(nil, FlipIV(mat.IV), plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// FlipIV returns a copy of iv with every bit inverted. The protocol requires
// the response IV to differ from the request IV in every bit position.
func FlipIV(iv []byte) []byte {
	flipped := make([]byte, len(iv))
	for i, b := range iv {
		flipped[i] = ^b
	}
	return flipped
}

// VerifySignature checks the X-Hub-Signature-256 header against an
// HMAC-SHA256 of the raw request body. A malformed header yields false. An
// empty appSecret skips verification and returns true; that bypass is for
// local testing only and the caller is expected to log it as insecure.
func VerifySignature(rawBody []byte, signatureHeader, appSecret string) bool {
	if appSecret == "" {
		return true
	}
	signature := strings.TrimPrefix(signatureHeader, "sha256=")
	if signature == "" {
		return false
	}
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(rawBody)
	return hmac.Equal(expected, mac.Sum(nil))
}

func gcmOpen(key, iv, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, iv, sealed, nil)
}
