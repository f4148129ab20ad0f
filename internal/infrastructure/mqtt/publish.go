package mqtt

import (
	"encoding/json"
	"fmt"
)

// Event is one door-open alert.
type Event struct {
	// Sequence is the per-boot publish sequence number. It is carried for
	// logging and the journal; the wire payload holds only the target.
	Sequence uint32

	// Target is the notification target from the configuration record.
	Target string
}

// AlertPayload builds the wire payload for an alert: {"payload": "<target>"}.
// The target is JSON-encoded, so quotes and control characters cannot break
// the envelope.
func AlertPayload(target string) ([]byte, error) {
	quoted, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("encoding target: %w", err)
	}
	return []byte(fmt.Sprintf(`{"payload": %s}`, quoted)), nil
}

// PublishAlert sends one alert on topic, at most once and not retained.
//
// Returns:
//   - error: ErrInvalidTopic, ErrNotConnected, or ErrPublishFailed wrapping the cause
func (c *Client) PublishAlert(topic string, ev Event) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	payload, err := AlertPayload(ev.Target)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, alertQoS, false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
