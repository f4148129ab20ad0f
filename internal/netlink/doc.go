// Package netlink brings the node's wireless interface up and down.
//
// Two roles are covered: station mode, joining the site network with the
// credentials from the configuration record, and access point mode, used
// while the node is being provisioned.
//
// The nmcli driver shells out to NetworkManager. The none driver does
// nothing and suits wired installs and development machines.
package netlink
