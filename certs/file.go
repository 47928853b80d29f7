package certs

import (
	"context"
	"fmt"
	"os"
)

// FileSource serves a certificate and key that already exist on disk.
type FileSource struct {
	certPath string
	keyPath  string
}

// NewFileSource creates a source backed by local certificate and key files.
func NewFileSource(certPath, keyPath string) *FileSource {
	return &FileSource{
		certPath: certPath,
		keyPath:  keyPath,
	}
}

// Resolve verifies that both files exist and returns their paths.
func (s *FileSource) Resolve(ctx context.Context) (string, string, error) {
	if _, err := os.Stat(s.certPath); err != nil {
		return "", "", fmt.Errorf("certificate file not usable: %w", err)
	}
	if _, err := os.Stat(s.keyPath); err != nil {
		return "", "", fmt.Errorf("key file not usable: %w", err)
	}
	return s.certPath, s.keyPath, nil
}

// Close is a no-op, the files are owned by the operator.
func (s *FileSource) Close() error {
	return nil
}

var _ Source = (*FileSource)(nil)
