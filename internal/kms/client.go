// Package kms decrypts the signer's session key with AWS KMS.
package kms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	log "github.com/sirupsen/logrus"
)

// API is the subset of the KMS SDK the client uses.
type API interface {
	Decrypt(ctx context.Context, in *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Client decrypts key blobs under one KMS key.
type Client struct {
	api   API
	keyID string
}

// New creates a KMS Client. If localStackEndpoint is non-empty, the client
// targets that endpoint with dummy credentials (for local development).
// Otherwise it uses the AWS default credential chain.
func New(ctx context.Context, region, keyID, localStackEndpoint string) (*Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if localStackEndpoint != "" {
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("kms: load aws config: %w", err)
	}

	var kmsOpts []func(*kms.Options)
	if localStackEndpoint != "" {
		kmsOpts = append(kmsOpts, func(o *kms.Options) {
			o.BaseEndpoint = aws.String(localStackEndpoint)
		})
		log.WithField("endpoint", localStackEndpoint).Warn("kms: using localstack endpoint")
	}

	return NewWithAPI(kms.NewFromConfig(cfg, kmsOpts...), keyID), nil
}

// NewWithAPI wraps an existing KMS API implementation.
func NewWithAPI(api API, keyID string) *Client {
	return &Client{api: api, keyID: keyID}
}

// Decrypt sends the ciphertext blob to KMS and returns the plaintext bytes.
// When the client was created with a key ID, KMS rejects blobs encrypted
// under any other key. The caller is responsible for wiping the result.
func (c *Client) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	in := &kms.DecryptInput{CiphertextBlob: ciphertext}
	if c.keyID != "" {
		in.KeyId = aws.String(c.keyID)
	}
	out, err := c.api.Decrypt(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("kms: decrypt: %w", err)
	}
	return out.Plaintext, nil
}
