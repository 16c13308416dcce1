// Package power routes server power actions (on, off, restart) to each
// device's Redfish controller. SNMP carries no control surface, so devices
// without a Redfish endpoint cannot be controlled.
package power
