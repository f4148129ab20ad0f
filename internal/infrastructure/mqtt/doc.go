// Package mqtt provides the broker session for a DoorGuard node.
//
// This package manages:
//   - The MQTT handshake over a connection supplied by the transport package
//   - At-most-once alert publishing
//   - Last Will and Testament (LWT) and retained online/offline status
//   - Session-loss detection surfaced through Yield
//
// # Session Lifetime
//
// Auto-reconnect is disabled. A node that loses its broker session exits and
// is restarted by its supervisor, which re-runs the full startup sequence.
//
//	transport.Dial → mqtt.Connect → PublishAlert... → Disconnect → conn.Close
//
// # Usage
//
//	conn, err := transport.NewDialer(cfg.MQTT).Dial(ctx)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	client, err := mqtt.Connect(conn, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Disconnect()
//
//	err = client.PublishAlert(cfg.MQTT.AlertTopic, mqtt.Event{Sequence: 0, Target: "12345"})
package mqtt
