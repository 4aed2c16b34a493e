// Package logging configures the process-wide structured logger and
// provides client-address anonymization for access logs.
//
// The proxy logs through log/slog. Setup installs a JSON or text
// handler as the slog default; the level comes from configuration or
// the LOG_LEVEL environment variable, and LOG_TO_FILE redirects output
// to a file. Anonymizer truncates client addresses to a configured
// subnet before they reach any log sink.
package logging
