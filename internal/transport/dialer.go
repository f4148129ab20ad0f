package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/doorguard-core/internal/infrastructure/config"
)

const (
	// defaultDialTimeout applies when the configuration leaves the timeout unset.
	defaultDialTimeout = 10 * time.Second

	// tlsMinVersion is the minimum TLS version for the broker session.
	tlsMinVersion = tls.VersionTLS12
)

// Dialer opens connections to the fixed broker endpoint.
type Dialer struct {
	cfg     config.MQTTConfig
	timeout time.Duration
}

// NewDialer creates a Dialer for the broker described by cfg.
func NewDialer(cfg config.MQTTConfig) *Dialer {
	timeout := time.Duration(cfg.ConnectTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return &Dialer{cfg: cfg, timeout: timeout}
}

// Address returns the host:port the dialer connects to.
func (d *Dialer) Address() string {
	return net.JoinHostPort(d.cfg.Broker.Host, strconv.Itoa(d.cfg.Broker.Port))
}

// Dial connects to the broker and, if TLS is enabled, completes the handshake.
//
// The returned connection is safe to Close more than once; only the first
// call reaches the socket.
//
// Returns:
//   - net.Conn: Established (and secured) connection
//   - error: *Error classified as network or secure transport
func (d *Dialer) Dial(ctx context.Context) (net.Conn, error) {
	nd := &net.Dialer{Timeout: d.timeout}

	raw, err := nd.DialContext(ctx, "tcp", d.Address())
	if err != nil {
		return nil, &Error{Op: "dial", Code: networkCode(err), Err: err}
	}

	if !d.cfg.TLS.Enabled {
		return &onceCloseConn{Conn: raw}, nil
	}

	tlsCfg, err := d.tlsConfig()
	if err != nil {
		raw.Close()
		return nil, &Error{Op: "configure", Code: CodeBadKeyMaterial, Err: err}
	}

	hctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	tc := tls.Client(raw, tlsCfg)
	if err := tc.HandshakeContext(hctx); err != nil {
		raw.Close()
		return nil, &Error{Op: "handshake", Code: handshakeCode(err), Err: err}
	}

	return &onceCloseConn{Conn: tc}, nil
}

// tlsConfig builds the client TLS configuration from the configured files.
// An empty CA file falls back to the system roots.
func (d *Dialer) tlsConfig() (*tls.Config, error) {
	serverName := d.cfg.TLS.ServerName
	if serverName == "" {
		serverName = d.cfg.Broker.Host
	}

	tlsCfg := &tls.Config{
		MinVersion: tlsMinVersion,
		ServerName: serverName,
	}

	if d.cfg.TLS.CAFile != "" {
		pem, err := os.ReadFile(d.cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", d.cfg.TLS.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	if d.cfg.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(d.cfg.TLS.CertFile, d.cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return tlsCfg, nil
}

// networkCode classifies a TCP-stage failure.
func networkCode(err error) int {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		return CodeUnknownHost
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return CodeTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return CodeConnectFailed
	default:
		return CodeSocketFailed
	}
}

// handshakeCode classifies a TLS-stage failure. A socket timeout during the
// handshake is still reported as a network timeout.
func handshakeCode(err error) int {
	var unknownAuthority x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var invalid x509.CertificateInvalidError
	var netErr net.Error
	switch {
	case errors.As(err, &unknownAuthority):
		return CodeUnknownAuthority
	case errors.As(err, &hostname):
		return CodeHostnameMismatch
	case errors.As(err, &invalid):
		return CodeCertificateInvalid
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return CodeTimeout
	default:
		return CodeHandshakeFailed
	}
}

// onceCloseConn makes Close idempotent. The MQTT client closes the socket
// on disconnect and the controller closes it again during teardown.
type onceCloseConn struct {
	net.Conn
	once sync.Once
	err  error
}

func (c *onceCloseConn) Close() error {
	c.once.Do(func() {
		c.err = c.Conn.Close()
	})
	return c.err
}
