package store

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// recordFields is the number of whitespace-separated tokens in a record line.
	recordFields = 3

	// MaxRecordBytes bounds the record line, newline included. Load treats a
	// longer file as malformed, so Validate refuses to write one.
	MaxRecordBytes = 512
)

// Record is the persisted configuration record.
//
// It is created by the provisioning service, read once at startup and never
// mutated by the controller.
type Record struct {
	NetworkName        string
	NetworkSecret      string
	NotificationTarget string
}

// ParseRecord parses a single record line of the form
// "<network_name> <network_secret> <notification_target>".
//
// The line ending is stripped. Anything other than exactly three tokens is
// ErrMalformedRecord; embedded whitespace in a token cannot be represented.
func ParseRecord(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")

	fields := strings.Fields(line)
	if len(fields) != recordFields {
		return Record{}, fmt.Errorf("%w: want %d tokens, got %d", ErrMalformedRecord, recordFields, len(fields))
	}

	return Record{
		NetworkName:        fields[0],
		NetworkSecret:      fields[1],
		NotificationTarget: fields[2],
	}, nil
}

// Validate reports whether the record can be persisted and read back unchanged.
func (r Record) Validate() error {
	fields := []struct{ name, value string }{
		{"network name", r.NetworkName},
		{"network secret", r.NetworkSecret},
		{"notification target", r.NotificationTarget},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidRecord, f.name)
		}
		if strings.IndexFunc(f.value, unicode.IsSpace) >= 0 {
			return fmt.Errorf("%w: %s contains whitespace", ErrInvalidRecord, f.name)
		}
	}
	if n := len(r.Line()); n > MaxRecordBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidRecord, n, MaxRecordBytes)
	}
	return nil
}

// Line returns the on-flash representation, newline terminated.
func (r Record) Line() string {
	return r.NetworkName + " " + r.NetworkSecret + " " + r.NotificationTarget + "\n"
}

// String renders the record without the secret, safe for logs.
func (r Record) String() string {
	return fmt.Sprintf("network=%s target=%s", r.NetworkName, r.NotificationTarget)
}
