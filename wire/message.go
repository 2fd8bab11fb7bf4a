// Package wire implements the two framings the ADB host protocol uses: the
// ASCII hex-length-prefixed host request/response framing, and the binary
// little-endian sync sub-protocol framing used inside a sync: session.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessageLength is the largest payload the 4-hex-digit length prefix can
// represent.
const MaxMessageLength = 0xFFFF

// EncodeMessage frames payload with a 4-character uppercase hex length
// prefix, as sent to the ADB host server. Fails if payload is too long to
// represent in 4 hex digits.
func EncodeMessage(payload string) (string, error) {
	if len(payload) > MaxMessageLength {
		return "", fmt.Errorf("wire: message of %d bytes exceeds max length %d", len(payload), MaxMessageLength)
	}
	return fmt.Sprintf("%04X%s", len(payload), payload), nil
}

// ReadLength parses an already-read 4-character hex length prefix.
func ReadLength(hex string) (int, error) {
	if len(hex) != 4 {
		return 0, fmt.Errorf("wire: length prefix must be exactly 4 characters, got %q", hex)
	}
	for _, c := range hex {
		if !isHexDigit(c) {
			return 0, fmt.Errorf("wire: length prefix %q is not hexadecimal", hex)
		}
	}
	var n int
	if _, err := fmt.Sscanf(hex, "%04x", &n); err != nil {
		return 0, fmt.Errorf("wire: invalid length prefix %q: %w", hex, err)
	}
	return n, nil
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// ReadLengthFrom reads a 4-byte hex length prefix directly off r.
func ReadLengthFrom(r io.Reader) (int, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, fmt.Errorf("wire: reading length prefix: %w", err)
	}
	return ReadLength(string(buf))
}

// WriteLengthLE writes n as a 4-byte little-endian integer, as used
// throughout the sync sub-protocol.
func WriteLengthLE(w io.Writer, n uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], n)
	_, err := w.Write(buf[:])
	return err
}

// ReadLengthLE reads a 4-byte little-endian integer.
func ReadLengthLE(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("wire: reading little-endian length: %w", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
