// Package cli carries the shared command-line plumbing: process exit
// codes, error wrappers that map failures to those codes, and signal
// handling contexts.
package cli
