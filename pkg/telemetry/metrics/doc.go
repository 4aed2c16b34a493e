// Package metrics exposes Prometheus instrumentation for the proxy.
//
// A Collector owns its registry and every metric family; the server
// serves it with promhttp on the optional metrics listener. Families:
//
//   - gatehouse_requests_total{app,upstream,status}
//   - gatehouse_request_duration_seconds{app}
//   - gatehouse_upstream_failures_total{upstream}
//   - gatehouse_tls_handshake_errors_total
//   - gatehouse_certificate_expiry_days{server_name}
//   - gatehouse_config_reloads_total{result}
//   - gatehouse_cache_events_total{event}
package metrics
