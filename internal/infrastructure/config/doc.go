// Package config handles loading and validating DoorGuard Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The YAML file carries installation-time settings only. Network credentials and
// the notification target are provisioned in the field and persisted by the store
// package as a one-line configuration record.
//
// Security Considerations:
//   - Broker passwords should be set via DOORGUARD_MQTT_PASSWORD
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.AlertTopic)
package config
