// Package certs resolves the TLS client certificate and key used to
// authenticate against the Vespa metrics endpoint.
package certs

import "context"

// Source resolves the client certificate and key to local file paths.
type Source interface {
	// Resolve returns the paths of the certificate and key files. The
	// returned paths stay valid until Close is called.
	Resolve(ctx context.Context) (certPath string, keyPath string, err error)
	// Close releases any resources held by the source.
	Close() error
}
