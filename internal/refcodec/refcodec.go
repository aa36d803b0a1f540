// Package refcodec turns a platform message id into the opaque string
// embedded in public URLs, and back. It is obfuscation, not authentication:
// anyone who can compute the inverse transform can decode a reference.
package refcodec

import (
	"encoding/base64"
	"errors"
)

// ErrInvalidReference is returned by Decode for any malformed, out-of-range,
// or otherwise untrustworthy input.
var ErrInvalidReference = errors.New("refcodec: invalid reference")

const (
	// offset must be odd so that multiplication by it is a bijection on
	// the 64-bit ring (every odd number has a multiplicative inverse mod 2^64).
	offset uint64 = 0x9E3779B97F4A7C15
	// xorMask must be nonzero; it only shuffles bit patterns and never
	// affects the bijection.
	xorMask uint64 = 0xD6E8FEB86659FD93

	// maxMessageID bounds decoded ids to 63 bits so they always fit in a
	// non-negative int64.
	maxMessageID = 1<<63 - 1
)

// offsetInverse is the modular multiplicative inverse of offset mod 2^64,
// computed once at init so Decode is a single multiplication.
var offsetInverse = modInverse64(offset)

// modInverse64 returns x such that a*x == 1 (mod 2^64), using the fact that
// every odd a is invertible in that ring. Computed via Newton's iteration,
// which doubles the number of correct bits each step.
func modInverse64(a uint64) uint64 {
	x := a // correct to 3 bits for any odd a
	for i := 0; i < 5; i++ {
		x = x * (2 - a*x)
	}
	return x
}

// Encode maps a nonnegative message id to an opaque, URL-safe, unpadded
// base64 string. The transform is a bijection on uint64, so Decode always
// recovers the original id for any messageID in [0, maxMessageID].
func Encode(messageID int64) (string, error) {
	if messageID < 0 || messageID > maxMessageID {
		return "", ErrInvalidReference
	}
	v := uint64(messageID)*offset ^ xorMask
	var buf [8]byte
	putUint64(buf[:], v)
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}

// Decode reverses Encode. It rejects malformed base64, wrong-length
// payloads, and results outside the valid 63-bit message id range.
func Decode(ref string) (int64, error) {
	if ref == "" {
		return 0, ErrInvalidReference
	}
	raw, err := base64.RawURLEncoding.DecodeString(ref)
	if err != nil {
		return 0, ErrInvalidReference
	}
	if len(raw) != 8 {
		return 0, ErrInvalidReference
	}
	v := getUint64(raw)
	messageID := (v ^ xorMask) * offsetInverse
	if messageID > maxMessageID {
		return 0, ErrInvalidReference
	}
	return int64(messageID), nil
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
