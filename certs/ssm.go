package certs

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

const (
	// DefaultCertParameter is the SSM parameter holding the public certificate.
	DefaultCertParameter = "album-recommendation-public-cert"
	// DefaultKeyParameter is the SSM parameter holding the private key.
	DefaultKeyParameter = "album-recommendation-private-key"
)

// SSMAPI is the subset of the SSM client used by the source.
type SSMAPI interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMSource downloads the certificate and key from AWS Systems Manager
// Parameter Store and stages them in a temporary directory.
type SSMSource struct {
	client    SSMAPI
	certParam string
	keyParam  string
	dir       string
}

// NewSSMSource creates a source reading the given parameters. Empty parameter
// names fall back to the defaults.
func NewSSMSource(ctx context.Context, region, certParam, keyParam string) (*SSMSource, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	if certParam == "" {
		certParam = DefaultCertParameter
	}
	if keyParam == "" {
		keyParam = DefaultKeyParameter
	}

	return &SSMSource{
		client:    ssm.NewFromConfig(cfg),
		certParam: certParam,
		keyParam:  keyParam,
	}, nil
}

// Resolve fetches both parameters with decryption and writes them to files
// readable only by the current user.
func (s *SSMSource) Resolve(ctx context.Context) (string, string, error) {
	output, err := s.client.GetParameters(ctx, &ssm.GetParametersInput{
		Names:          []string{s.certParam, s.keyParam},
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to read parameters from SSM: %w", err)
	}
	if len(output.InvalidParameters) > 0 {
		return "", "", fmt.Errorf("invalid SSM parameters: %v", output.InvalidParameters)
	}

	values := make(map[string]string)
	for _, parameter := range output.Parameters {
		values[aws.ToString(parameter.Name)] = aws.ToString(parameter.Value)
	}
	certValue, ok := values[s.certParam]
	if !ok {
		return "", "", fmt.Errorf("SSM response is missing parameter %s", s.certParam)
	}
	keyValue, ok := values[s.keyParam]
	if !ok {
		return "", "", fmt.Errorf("SSM response is missing parameter %s", s.keyParam)
	}

	dir, err := os.MkdirTemp("", "vespa-emitter-certs-")
	if err != nil {
		return "", "", fmt.Errorf("failed to create certificate directory: %w", err)
	}
	s.dir = dir

	certPath := filepath.Join(dir, "client.pem")
	keyPath := filepath.Join(dir, "client.key")
	if err := os.WriteFile(certPath, []byte(certValue), 0600); err != nil {
		return "", "", fmt.Errorf("failed to write certificate file: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(keyValue), 0600); err != nil {
		return "", "", fmt.Errorf("failed to write key file: %w", err)
	}

	log.Printf("[certs] Staged certificate and key from SSM in %s", dir)
	return certPath, keyPath, nil
}

// Close removes the staged certificate files.
func (s *SSMSource) Close() error {
	if s.dir == "" {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove certificate directory: %w", err)
	}
	s.dir = ""
	return nil
}

var _ Source = (*SSMSource)(nil)
