// Package snmp is the SNMP client adapter for Dell iDRAC-class BMCs.
//
// Client wraps gosnmp with the two capabilities the rest of the system
// consumes: Get (batched fetch of OIDs into tagged RawValues, absent for
// NoSuchObject/NoSuchInstance) and Probe (does this OID exist). Network
// failures come back as *TransportError so callers can tell "agent
// unreachable" apart from "object not present".
//
// oids.go carries the Dell enterprise MIB layout: one Table per unit-indexed
// category (temperatures, fans, power supplies, …) plus scalar facet maps for
// identity and chassis power draw. A unit's OID is the column prefix plus
// "." plus the unit index.
//
// A Client is not safe for concurrent use; the coordinator serializes all
// SNMP access for a device.
package snmp
