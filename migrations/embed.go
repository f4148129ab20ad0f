// Package migrations embeds the alert journal SQL migrations into the binary.
package migrations

import "embed"

// FS holds every migration file. Files are at the root of the filesystem,
// so callers pass "." as the directory.
//
//go:embed *.sql
var FS embed.FS
