package controller

import (
	"errors"

	"github.com/nerrad567/doorguard-core/internal/provisioning"
)

var (
	// ErrRestartRequired is returned when the process must restart to pick up
	// a changed configuration record: after provisioning wrote one, or after
	// the maintenance button erased it. The supervisor restarts the process.
	ErrRestartRequired = provisioning.ErrRestartRequired

	// ErrSessionLost is returned when the broker yield reports a failure.
	ErrSessionLost = errors.New("controller: broker session lost")
)
