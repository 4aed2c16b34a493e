// Package certs implements the SNI-indexed certificate store.
//
// The store holds an immutable Snapshot referenced through an atomic
// pointer. Lookup resolves a client-sent server name to certified key
// material: exact name first, then the single-label wildcard form, then
// the optional default certificate. Reload builds and validates a
// complete new snapshot and swaps the pointer; handshakes that started
// on the previous snapshot finish undisturbed.
//
// Applications marked acme = true delegate their key material to an
// ACME manager that solves the TLS-ALPN-01 challenge through the same
// SNI lookup path and renews certificates before expiry.
package certs
