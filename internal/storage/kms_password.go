package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// PasswordProvider resolves the share-store encryption password. The
// simplest provider is a static string from config; KMSPasswordProvider
// instead unwraps an envelope-encrypted password via AWS KMS so the
// plaintext password never sits in config at rest.
type PasswordProvider interface {
	Password(ctx context.Context) (string, error)
}

// StaticPassword implements PasswordProvider by returning a fixed value.
type StaticPassword string

// Password implements PasswordProvider.
func (p StaticPassword) Password(context.Context) (string, error) {
	return string(p), nil
}

// KMSPasswordProvider decrypts a base64-free ciphertext blob via AWS KMS
// and returns the plaintext password. Grounded on the teacher pack's own
// KMS client wrapper: region/localstack-endpoint construction and a single
// Decrypt call.
type KMSPasswordProvider struct {
	client         *kms.Client
	ciphertextBlob []byte
}

// NewKMSPasswordProvider constructs a client against region (optionally
// redirected to localEndpoint for local development) and binds it to the
// ciphertext blob that unwraps to the share-store password.
func NewKMSPasswordProvider(ctx context.Context, region, localEndpoint string, ciphertextBlob []byte) (*KMSPasswordProvider, error) {
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(region))

	if localEndpoint != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", "test"),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	var kmsOpts []func(*kms.Options)
	if localEndpoint != "" {
		kmsOpts = append(kmsOpts, func(o *kms.Options) {
			o.BaseEndpoint = aws.String(localEndpoint)
		})
	}

	return &KMSPasswordProvider{
		client:         kms.NewFromConfig(cfg, kmsOpts...),
		ciphertextBlob: ciphertextBlob,
	}, nil
}

// Password implements PasswordProvider.
func (p *KMSPasswordProvider) Password(ctx context.Context) (string, error) {
	out, err := p.client.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: p.ciphertextBlob})
	if err != nil {
		return "", fmt.Errorf("storage: kms decrypt: %w", err)
	}
	return string(out.Plaintext), nil
}
