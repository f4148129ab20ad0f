package transport

import (
	"errors"
	"fmt"
)

// Class identifies which layer a transport failure belongs to.
type Class string

// Failure classes, split at maxNetworkErrorCode.
const (
	ClassNetwork         Class = "network"
	ClassSecureTransport Class = "secure-transport"
)

// maxNetworkErrorCode is the code-range boundary. Codes above it (and below
// zero) are network failures; codes at or below it are TLS failures.
const maxNetworkErrorCode = -0x1000

// Network failure codes.
const (
	CodeSocketFailed  = -0x0042
	CodeConnectFailed = -0x0044
	CodeTimeout       = -0x0048
	CodeUnknownHost   = -0x0052
)

// Secure transport failure codes.
const (
	CodeUnknownAuthority   = -0x2700
	CodeHostnameMismatch   = -0x2780
	CodeCertificateInvalid = -0x2800
	CodeBadKeyMaterial     = -0x7100
	CodeHandshakeFailed    = -0x7780
)

// Class sentinels for errors.Is.
var (
	// ErrNetwork matches any *Error whose code lies in the network range.
	ErrNetwork = errors.New("transport: network error")

	// ErrSecureTransport matches any *Error whose code lies in the TLS range.
	ErrSecureTransport = errors.New("transport: secure transport error")
)

// Error is a classified transport failure.
type Error struct {
	// Op is the failing step: "dial", "configure" or "handshake".
	Op string

	// Code is the negative numeric failure code.
	Code int

	// Err is the underlying cause.
	Err error
}

// ClassOf maps a numeric code onto its class. Zero and positive codes have
// no class.
func ClassOf(code int) Class {
	switch {
	case code >= 0:
		return ""
	case code > maxNetworkErrorCode:
		return ClassNetwork
	default:
		return ClassSecureTransport
	}
}

// Class returns the failure class derived from Code.
func (e *Error) Class() Class {
	return ClassOf(e.Code)
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s failed (%s error -0x%04X): %v", e.Op, e.Class(), -e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the class sentinel matching this error.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Class() == ClassNetwork
	case ErrSecureTransport:
		return e.Class() == ClassSecureTransport
	}
	return false
}
