// Package provisioning serves the first-boot configuration form.
//
// When the node has no configuration record it starts a local access point
// and an HTTP server offering a three-field form (network name, network
// secret, notification target). A valid submission is written to the
// configuration store and the service ends with ErrRestartRequired; the
// supervisor restarts the process, which then boots normally.
//
// States:
//
//	IDLE ──start ok──▶ SERVING ──record written──▶ RESTART_PENDING
//	  │                   │
//	  └──start failed──▶ ERROR ◀──storage failure──┘
//
// ERROR and RESTART_PENDING are terminal for the process.
//
// Thread Safety: State may be read from any goroutine.
package provisioning
