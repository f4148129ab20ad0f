// Package hardware adapts the door contact, alert LED, badge reader and
// maintenance button to small interfaces the controller polls.
//
// Two drivers are provided:
//   - periph: GPIO and SPI on a Linux single-board computer via periph.io
//   - sim: plain files in a directory, for desktop runs and CI
//
// The sim directory holds:
//
//	door     "open" or "closed" (absent reads as closed)
//	badge    presence means a badge is held to the reader; consumed on read
//	button   presence means the maintenance button was pressed; consumed on read
//	led      written by the driver, "on" or "off"
package hardware
