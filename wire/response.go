package wire

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

var (
	okayBytes = []byte("OKAY")
	failBytes = []byte("FAIL")
)

// ReadResponse reads a host protocol reply following a freshly-written
// request. hasOutput indicates the caller expects a response body at all;
// hasLength indicates that body is itself framed with a 4-hex-digit length
// prefix, which is stripped. Either way the body is read to end-of-stream.
//
// It implements the full response policy: non-OKAY status surfaces the
// server's length-prefixed error message; a stacked OKAYOKAY artefact from
// tunnelled transports is unwrapped; a FAIL embedded in the body after an
// OKAY status is surfaced as an error; a declared/actual length mismatch on
// a length-framed body is logged but does not abort the read.
func ReadResponse(r io.Reader, hasOutput, hasLength bool) ([]byte, error) {
	status := make([]byte, 4)
	if _, err := io.ReadFull(r, status); err != nil {
		return nil, fmt.Errorf("wire: reading response status: %w", err)
	}

	if !bytes.Equal(status, okayBytes) {
		msg, err := readFramedErrorMessage(r)
		if err != nil {
			return nil, err
		}
		return nil, &ProtocolError{Message: msg}
	}

	if !hasOutput {
		return nil, nil
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("wire: reading response body: %w", err)
	}

	if bytes.HasPrefix(body, okayBytes) {
		body = body[len(okayBytes):]
	}

	if bytes.HasPrefix(body, failBytes) {
		return nil, parseEmbeddedFail(body)
	}

	if hasLength {
		return splitLengthFramedBody(body)
	}

	return body, nil
}

func readFramedErrorMessage(r io.Reader) (string, error) {
	n, err := ReadLengthFrom(r)
	if err != nil {
		return "", fmt.Errorf("wire: reading error length: %w", err)
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		return "", fmt.Errorf("wire: reading error message: %w", err)
	}
	if !utf8.Valid(msg) {
		return "adb error was not utf-8", nil
	}
	return string(msg), nil
}

func parseEmbeddedFail(body []byte) error {
	rest := body[len(failBytes):]
	if len(rest) < 4 {
		return &ProtocolError{Message: "FAIL (unknown)"}
	}
	msgLen, err := ReadLength(string(rest[:4]))
	if err != nil {
		return &ProtocolError{Message: "FAIL (unknown)"}
	}
	msgBytes := rest[4:]
	if msgLen < len(msgBytes) {
		msgBytes = msgBytes[:msgLen]
	}
	if !utf8.Valid(msgBytes) {
		return &ProtocolError{Message: "adb error was not utf-8"}
	}
	return &ProtocolError{Message: string(msgBytes)}
}

func splitLengthFramedBody(body []byte) ([]byte, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("wire: length-framed response shorter than its own length prefix")
	}
	declared, err := ReadLength(string(body[:4]))
	if err != nil {
		return nil, fmt.Errorf("wire: invalid length-framed response: %w", err)
	}
	payload := body[4:]
	if declared != len(payload) {
		logrus.WithFields(logrus.Fields{
			"declared": declared,
			"actual":   len(payload),
		}).Warn("wire: response declared length disagrees with bytes available")
	}
	return payload, nil
}
