// Package influxdb provides optional door telemetry for DoorGuard Core.
//
// It wraps the official influxdb-client-go v2 library. Each alarm
// transition becomes one point in the door_events measurement, tagged with
// the device identifier and the state entered.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDoorEvent(influxdb.DoorEvent{DeviceID: "doorguard-01", State: "alerting"})
//
// # Error Handling
//
// Writes are non-blocking; failures are delivered to the SetOnError
// callback and never reach the caller. Telemetry must not stall the alarm
// loop.
package influxdb
