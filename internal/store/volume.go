package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Volume permission constants.
const (
	// dirPermissions is the permission mode for the volume root.
	dirPermissions = 0750

	// filePermissions is the permission mode for the record file.
	// The record holds the network secret in clear text.
	filePermissions = 0600

	// probeName is the scratch file used to verify the volume is writable.
	probeName = ".mount-probe"
)

// errNotMounted is returned by volume operations attempted while unmounted.
var errNotMounted = errors.New("store: volume not mounted")

// Volume is the block-storage lifecycle the store depends on.
//
// Implementations wrap whatever backs the record: a flash partition, a
// directory, or an in-memory fake in tests.
type Volume interface {
	// Mount makes the volume available under Root.
	Mount() error

	// Format erases the volume and leaves it mountable.
	Format() error

	// Unmount releases the volume.
	Unmount() error

	// Root returns the directory the volume is available under while mounted.
	Root() string
}

// DirVolume is a Volume over a directory on the flash partition.
//
// Mount verifies the directory exists (creating it if absent) and is
// writable. Format removes the directory tree and recreates it empty.
type DirVolume struct {
	root string

	mu      sync.Mutex
	mounted bool
}

// NewDirVolume creates a DirVolume rooted at root.
func NewDirVolume(root string) *DirVolume {
	return &DirVolume{root: root}
}

// Mount implements Volume.
func (v *DirVolume) Mount() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	info, err := os.Stat(v.root)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(v.root, dirPermissions); mkErr != nil {
			return fmt.Errorf("creating volume root: %w", mkErr)
		}
	case err != nil:
		return fmt.Errorf("stat volume root: %w", err)
	case !info.IsDir():
		return fmt.Errorf("volume root %s is not a directory", v.root)
	}

	// Write probe so a read-only or corrupt filesystem fails at mount time,
	// not halfway through a record write.
	probe := filepath.Join(v.root, probeName)
	if err := os.WriteFile(probe, nil, filePermissions); err != nil {
		return fmt.Errorf("volume not writable: %w", err)
	}
	_ = os.Remove(probe) //nolint:errcheck // Probe removal failure is harmless

	v.mounted = true
	return nil
}

// Format implements Volume.
func (v *DirVolume) Format() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := os.RemoveAll(v.root); err != nil {
		return fmt.Errorf("removing volume root: %w", err)
	}
	if err := os.MkdirAll(v.root, dirPermissions); err != nil {
		return fmt.Errorf("recreating volume root: %w", err)
	}
	return nil
}

// Unmount implements Volume.
func (v *DirVolume) Unmount() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.mounted {
		return errNotMounted
	}
	v.mounted = false
	return nil
}

// Root implements Volume.
func (v *DirVolume) Root() string {
	return v.root
}
