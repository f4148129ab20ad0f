package mqtt

import (
	"context"
	"fmt"
	"net"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/doorguard-core/internal/infrastructure/config"
)

// Client is the broker session of one DoorGuard node.
//
// It runs MQTT 3.1.1 over a connection established by the transport layer.
// The session is created once per process; if it drops it is not restored,
// and the controller tears the process down.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// lost is closed by the connection-lost handler; lostErr holds the cause.
	lost     chan struct{}
	lostOnce sync.Once
	lostErr  error

	disconnectOnce sync.Once

	// logger for session events (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Connect performs the broker handshake over conn.
//
// It performs the following setup:
//  1. Builds options from config (client id, credentials, keepalive)
//  2. Configures Last Will and Testament (LWT) for offline detection
//  3. Sends CONNECT and waits for CONNACK within the connect timeout
//  4. Publishes retained online status to doorguard/<client_id>/status
//
// Parameters:
//   - conn: Established (and, in production, TLS-secured) transport connection
//   - cfg: MQTT configuration from config.yaml
//
// Returns:
//   - *Client: Connected session ready for publishing
//   - error: *ConnectError if the broker refused, otherwise wrapped ErrConnectionFailed
func Connect(conn net.Conn, cfg config.MQTTConfig) (*Client, error) {
	if conn == nil {
		return nil, ErrNoTransport
	}

	opts := buildClientOptions(cfg, conn)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:  cfg,
		lost: make(chan struct{}),
	}

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = pahomqtt.NewClient(opts)

	timeout := connectTimeout(cfg)
	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
	}
	if err := token.Error(); err != nil {
		if ct, ok := token.(*pahomqtt.ConnectToken); ok && ct.ReturnCode() != 0 {
			return nil, &ConnectError{ReturnCode: ct.ReturnCode(), Err: err}
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.publishOnlineStatus()

	return c, nil
}

// handleConnectionLost is called by paho when the session drops.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.lostOnce.Do(func() {
		c.lostErr = err
		close(c.lost)
	})

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}
}

// publishOnlineStatus publishes the node's retained online status.
func (c *Client) publishOnlineStatus() {
	topic := Topics{}.Status(c.cfg.Broker.ClientID)
	token := c.client.Publish(topic, statusQoS, true, buildOnlinePayload(c.cfg.Broker.ClientID))
	if !token.WaitTimeout(defaultPublishTimeout) || token.Error() != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT online status publish failed", "topic", topic, "error", token.Error())
		}
	}
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// Yield gives the session a chance to report protocol-level failure.
//
// Keepalive pings and inbound control packets are handled by paho's own
// goroutines; Yield surfaces their outcome at the controller's poll point.
//
// Returns:
//   - error: ErrConnectionLost once the session has dropped, ErrNotConnected
//     if the client was disconnected, ctx.Err() if ctx is done
func (c *Client) Yield(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-c.lost:
		return fmt.Errorf("%w: %w", ErrConnectionLost, c.lostErr)
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Disconnect gracefully ends the session.
//
// It performs:
//  1. Publishes graceful offline status (different from LWT crash status)
//  2. Disconnects with a quiesce period for pending operations
//
// Only the first call has any effect.
func (c *Client) Disconnect() {
	if c.client == nil {
		return
	}

	c.disconnectOnce.Do(func() {
		if c.IsConnected() {
			topic := Topics{}.Status(c.cfg.Broker.ClientID)
			token := c.client.Publish(topic, statusQoS, true, buildOfflinePayload(c.cfg.Broker.ClientID))
			token.WaitTimeout(defaultPublishTimeout)
		}

		c.client.Disconnect(defaultDisconnectQuiesce)

		c.connMu.Lock()
		c.connected = false
		c.connMu.Unlock()
	})
}

// SetLogger sets a logger for session events.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
