package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// doorEventMeasurement is the measurement alarm transitions are written to.
const doorEventMeasurement = "door_events"

// DoorEvent is one alarm transition as written to telemetry.
type DoorEvent struct {
	DeviceID string
	State    string
	Sequence uint32

	// At is the point timestamp. Zero means the local clock at write time.
	At time.Time

	// ClockSynced reports whether At was corrected against a time server.
	ClockSynced bool
}

// WriteDoorEvent records one alarm transition.
//
// The write is non-blocking; points are batched and sent asynchronously,
// and failures surface only through the SetOnError callback.
//
// Example:
//
//	client.WriteDoorEvent(influxdb.DoorEvent{
//	    DeviceID: "doorguard-01",
//	    State:    "alerting",
//	    Sequence: 3,
//	    At:       clk.Now(),
//	})
func (c *Client) WriteDoorEvent(ev DoorEvent) {
	if !c.IsConnected() {
		return
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	point := write.NewPoint(
		doorEventMeasurement,
		map[string]string{
			"device_id": ev.DeviceID,
			"state":     ev.State,
		},
		map[string]interface{}{
			"sequence":     int64(ev.Sequence),
			"clock_synced": ev.ClockSynced,
		},
		at,
	)
	c.writeAPI.WritePoint(point)
}
