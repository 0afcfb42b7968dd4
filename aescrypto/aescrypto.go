// Package aescrypto is the default implementation of the external
// Crypto collaborator (spec.md §6.3): transparent AES-CTR
// encrypt/decrypt of scalar values marked Crypted. The cipher
// mechanics — random IV prepended to the ciphertext, CTR-mode XOR — are
// adapted directly from tree/cryptography.go in the teacher repository;
// what's new here is operating on a value.Value scalar instead of a
// raw byte slice, and the "##" marker prefix (from the spec's S3
// scenario: encrypt("hi")=="##X") that lets an encrypted value be
// told apart from plaintext on inspection.
package aescrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/qconfig/qconfig/internal/value"
)

// Marker prefixes every value this package has encrypted.
const Marker = "##"

// AES implements cursor.Crypto with a single symmetric key.
type AES struct {
	block cipher.Block
}

// New builds an AES Crypto from a raw key (16, 24, or 32 bytes for
// AES-128/192/256).
func New(key []byte) (*AES, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aescrypto.New: %w", err)
	}
	return &AES{block: block}, nil
}

// Encrypt wraps a Scalar's payload in AES-CTR ciphertext, base64-encoded
// and "##"-prefixed. Non-scalar values (Map, List, Null) pass through
// unchanged — the Crypted flag is a leaf-value concern.
func (c *AES) Encrypt(v value.Value) (value.Value, error) {
	if v.Kind() != value.ScalarKind {
		return v, nil
	}
	s, _ := v.Scalar()
	plain := encodeScalar(s)
	cipherBytes, err := c.encryptBytes(plain)
	if err != nil {
		return value.Value{}, fmt.Errorf("aescrypto.Encrypt: %w", err)
	}
	return value.NewScalar(value.Str(Marker + base64.StdEncoding.EncodeToString(cipherBytes))), nil
}

// Decrypt reverses Encrypt. A Scalar not carrying the "##" marker is
// returned unchanged: it was never encrypted by this package.
func (c *AES) Decrypt(v value.Value) (value.Value, error) {
	if v.Kind() != value.ScalarKind {
		return v, nil
	}
	s, _ := v.Scalar()
	if s.Kind != value.String || !strings.HasPrefix(s.Str, Marker) {
		return v, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s.Str, Marker))
	if err != nil {
		return value.Value{}, fmt.Errorf("aescrypto.Decrypt: %w", err)
	}
	plain, err := c.decryptBytes(raw)
	if err != nil {
		return value.Value{}, fmt.Errorf("aescrypto.Decrypt: %w", err)
	}
	return value.NewScalar(decodeScalar(plain)), nil
}

func (c *AES) encryptBytes(plain []byte) ([]byte, error) {
	iv := make([]byte, c.block.BlockSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("reading random iv: %w", err)
	}
	out := make([]byte, len(plain))
	cipher.NewCTR(c.block, iv).XORKeyStream(out, plain)
	return append(iv, out...), nil
}

func (c *AES) decryptBytes(in []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(in) < bs {
		return nil, fmt.Errorf("ciphertext shorter than one block")
	}
	iv, body := in[:bs], in[bs:]
	out := make([]byte, len(body))
	cipher.NewCTR(c.block, iv).XORKeyStream(out, body)
	return out, nil
}

const (
	tagBool byte = iota + 1
	tagInt
	tagFloat
	tagString
	tagBytes
	tagTime
	tagOpaque
)

func encodeScalar(s value.Scalar) []byte {
	switch s.Kind {
	case value.Bool:
		b := byte(0)
		if s.Bool {
			b = 1
		}
		return []byte{tagBool, b}
	case value.Int:
		buf := make([]byte, 9)
		buf[0] = tagInt
		binary.BigEndian.PutUint64(buf[1:], uint64(s.Int))
		return buf
	case value.Float:
		buf := make([]byte, 9)
		buf[0] = tagFloat
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(s.Float))
		return buf
	case value.Bytes:
		return append([]byte{tagBytes}, s.Bytes...)
	case value.Time:
		return append([]byte{tagTime}, []byte(s.Time.UTC().Format(time.RFC3339Nano))...)
	case value.Opaque:
		return append([]byte{tagOpaque}, []byte(s.Str)...)
	default:
		return append([]byte{tagString}, []byte(s.Str)...)
	}
}

func decodeScalar(b []byte) value.Scalar {
	if len(b) == 0 {
		return value.Str("")
	}
	tag, payload := b[0], b[1:]
	switch tag {
	case tagBool:
		return value.Bl(len(payload) > 0 && payload[0] == 1)
	case tagInt:
		return value.In(int64(binary.BigEndian.Uint64(payload)))
	case tagFloat:
		return value.Fl(math.Float64frombits(binary.BigEndian.Uint64(payload)))
	case tagBytes:
		return value.Byt(payload)
	case tagTime:
		t, err := time.Parse(time.RFC3339Nano, string(payload))
		if err != nil {
			return value.Str(string(payload))
		}
		return value.Tim(t)
	case tagOpaque:
		return value.Opq(string(payload))
	default:
		return value.Str(string(payload))
	}
}
