// Package middleware provides the cross-cutting handler chain wrapped
// around the proxy engine: request-id assignment, access logging with
// client-address anonymization, and panic recovery.
package middleware
