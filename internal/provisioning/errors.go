package provisioning

import "errors"

var (
	// ErrRestartRequired is returned by Run once a record has been written.
	// The process must restart to load it.
	ErrRestartRequired = errors.New("provisioning: restart required")

	// ErrStartFailed is returned when the access point or listener cannot start.
	ErrStartFailed = errors.New("provisioning: start failed")

	// ErrStorageFailed is returned when a submitted record cannot be persisted.
	ErrStorageFailed = errors.New("provisioning: storage failed")
)
