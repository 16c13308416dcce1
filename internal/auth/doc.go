// Package auth guards the HTTP API with constant-time API-key checks.
package auth
