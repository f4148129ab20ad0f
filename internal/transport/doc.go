// Package transport establishes the secure byte stream to the alert broker.
//
// A Dialer opens a TCP connection to the configured broker endpoint and, when
// TLS is enabled, completes the handshake using the installation's CA and
// client certificate. The resulting net.Conn is handed to the MQTT layer,
// which runs the broker protocol over it.
//
// # Error Codes
//
// Every failure is returned as *Error carrying a negative numeric code. The
// code range identifies the failing layer:
//
//	-0x1000 < code < 0   network (resolution, connect, timeout)
//	code <= -0x1000      secure transport (certificate, handshake, key material)
//
// Callers can test the class with errors.Is(err, transport.ErrNetwork) or
// errors.Is(err, transport.ErrSecureTransport).
//
// # Usage
//
//	d := transport.NewDialer(cfg.MQTT)
//	conn, err := d.Dial(ctx)
//	if err != nil {
//	    return err // *transport.Error
//	}
//	defer conn.Close()
package transport
