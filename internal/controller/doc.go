// Package controller is the DoorGuard device controller.
//
// It owns every resource handle of one boot: the configuration record, the
// network link, the secure transport, the broker session and the hardware
// adapters. Startup either completes every step or returns an error; there
// is no degraded mode.
//
// The alarm loop is single threaded. Per iteration it checks the broker
// session, yields to it, samples the door and advances the Alarm state
// machine, then sleeps the fixed poll interval. The maintenance flag is the
// only datum written from another goroutine.
//
// Usage:
//
//	ctrl, err := controller.New(controller.Deps{...})
//	if err != nil {
//	    return err
//	}
//	return ctrl.Run(ctx)
package controller
