package snmp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/bmcscout/bmcscout/internal/sensor"
)

// TransportError wraps a network-level failure talking to the SNMP agent.
// Object-not-present outcomes are absent values, never a TransportError.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "snmp: transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Config holds connection settings for one device's SNMP agent.
type Config struct {
	Host      string
	Port      uint16
	Community string
	Version   string // "1" | "2c"
	Timeout   time.Duration
	Retries   int
}

// Client is the SNMP adapter for one device. Build it once and reuse it;
// it lazily opens its UDP socket on first use.
type Client struct {
	agent     *gosnmp.GoSNMP
	connected bool
}

// NewClient builds a Client from cfg. No I/O happens until Get or Probe.
func NewClient(cfg Config) *Client {
	version := gosnmp.Version2c
	if cfg.Version == "1" {
		version = gosnmp.Version1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		agent: &gosnmp.GoSNMP{
			Target:    cfg.Host,
			Port:      cfg.Port,
			Community: cfg.Community,
			Version:   version,
			Timeout:   timeout,
			Retries:   cfg.Retries,
			MaxOids:   gosnmp.MaxOids,
		},
	}
}

// ensure opens the UDP socket once.
func (c *Client) ensure() error {
	if c.connected {
		return nil
	}
	if err := c.agent.Connect(); err != nil {
		return &TransportError{Err: fmt.Errorf("connect %s: %w", c.agent.Target, err)}
	}
	c.connected = true
	return nil
}

// Close releases the socket. The client may be reused; the next call reopens it.
func (c *Client) Close() error {
	if !c.connected || c.agent.Conn == nil {
		return nil
	}
	c.connected = false
	return c.agent.Conn.Close()
}

// Get fetches the given OIDs, batching requests to the agent's OID-per-PDU
// limit. The result maps each requested OID to its value; objects the agent
// does not expose come back absent. A network failure returns *TransportError
// together with whatever batches completed before it.
func (c *Client) Get(ctx context.Context, oids []string) (map[string]sensor.RawValue, error) {
	out := make(map[string]sensor.RawValue, len(oids))
	if len(oids) == 0 {
		return out, nil
	}
	if err := c.ensure(); err != nil {
		return out, err
	}

	c.agent.Context = ctx

	for start := 0; start < len(oids); start += c.agent.MaxOids {
		end := start + c.agent.MaxOids
		if end > len(oids) {
			end = len(oids)
		}
		batch := oids[start:end]

		pkt, err := c.agent.Get(batch)
		if err != nil {
			return out, &TransportError{Err: fmt.Errorf("get %d oids from %s: %w", len(batch), c.agent.Target, err)}
		}

		for _, pdu := range pkt.Variables {
			name := strings.TrimPrefix(pdu.Name, ".")
			out[name] = pduValue(pdu)
		}
	}

	// Requested OIDs the agent never echoed back are absent.
	for _, oid := range oids {
		if _, ok := out[oid]; !ok {
			out[oid] = sensor.Absent()
		}
	}
	return out, nil
}

// Probe reports whether the object at oid exists on the agent.
// Transport failures read as "not present" — discovery treats a missing
// answer the same as a missing object.
func (c *Client) Probe(ctx context.Context, oid string) bool {
	vals, err := c.Get(ctx, []string{oid})
	if err != nil {
		return false
	}
	return !vals[oid].IsAbsent()
}

// pduValue converts one response PDU into a tagged RawValue.
func pduValue(pdu gosnmp.SnmpPDU) sensor.RawValue {
	switch pdu.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return sensor.Absent()
	case gosnmp.OctetString:
		b, ok := pdu.Value.([]byte)
		if !ok {
			return sensor.Absent()
		}
		return sensor.Str(strings.TrimSpace(string(b)))
	case gosnmp.ObjectIdentifier, gosnmp.IPAddress:
		s, ok := pdu.Value.(string)
		if !ok {
			return sensor.Absent()
		}
		return sensor.Str(s)
	default:
		// Integer, Gauge32, Counter32, Counter64, TimeTicks, Uinteger32.
		if pdu.Value == nil {
			return sensor.Absent()
		}
		return sensor.Int64(gosnmp.ToBigInt(pdu.Value).Int64())
	}
}
