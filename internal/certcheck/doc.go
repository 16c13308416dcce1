// Package certcheck inspects the TLS certificate presented by a BMC's
// HTTPS endpoint. BMCs ship with self-signed certificates that operators
// replace and then forget about; an expired certificate is usually the
// first sign nobody has touched the management controller in years.
//
// Check dials the endpoint, reads the leaf certificate and classifies it
// as valid, expiring, expired or unreachable. Results feed the exporter
// (bmcscout_cert_days_left) and the alert engine (cert_days_left field).
package certcheck
