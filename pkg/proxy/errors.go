package proxy

import (
	"errors"
	"net/http"

	"gatehouse-hq/gatehouse/pkg/router"
)

// Sentinel errors for the failure classes a request can hit. Each maps
// to one response status; see StatusFor.
var (
	// ErrBadRequest covers malformed or oversize inbound requests.
	ErrBadRequest = errors.New("bad request")

	// ErrMisdirected is an SNI / Host mismatch on a TLS connection.
	ErrMisdirected = errors.New("authority does not match negotiated server name")

	// ErrUpstreamUnavailable means every retry candidate failed at
	// the transport level.
	ErrUpstreamUnavailable = errors.New("no upstream available")

	// ErrUpstreamTimeout means the upstream did not produce response
	// headers in time.
	ErrUpstreamTimeout = errors.New("upstream timed out")

	// ErrBodyTooLarge means the inbound body exceeded max_body_bytes.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrUpgradeRejected means a protocol upgrade was requested on a
	// front that cannot carry it.
	ErrUpgradeRejected = errors.New("upgrade rejected")
)

// StatusFor maps a request-processing error to its response status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, router.ErrNoApplication), errors.Is(err, router.ErrNoRoute):
		return http.StatusNotFound
	case errors.Is(err, ErrMisdirected):
		return http.StatusMisdirectedRequest
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUpgradeRejected), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
