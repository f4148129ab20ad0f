package mqtt

import "fmt"

// TopicPrefix is the base for all DoorGuard topics.
const TopicPrefix = "doorguard"

// Topics provides builders for DoorGuard MQTT topics.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.Status("doorguard-01")
//	// Returns: "doorguard/doorguard-01/status"
type Topics struct{}

// Status returns the retained online/offline status topic for a node.
// The Last Will is published here if the node drops off the broker.
//
// Example: doorguard/doorguard-01/status
func (Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, clientID)
}

// Alert returns the per-node alert topic, for installations that route
// alerts by node rather than through one shared topic.
//
// Example: doorguard/doorguard-01/alert
func (Topics) Alert(clientID string) string {
	return fmt.Sprintf("%s/%s/alert", TopicPrefix, clientID)
}
