package kms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// Options configures the AWS KMS client.
type Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Client is an AWS KMS implementation of Cipher.
type Client struct {
	client *kms.Client
}

// New creates a KMS client. Retries are handled at the transport layer
// (adaptive mode, max 3 attempts); callers must not add their own retry loops.
func New(ctx context.Context, o Options) (*Client, error) {
	region := o.Region
	if region == "" {
		region = "us-east-1"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(region))
	opts = append(opts, awsconfig.WithRetryMaxAttempts(3))
	opts = append(opts, awsconfig.WithRetryMode(aws.RetryModeAdaptive))

	if o.AccessKeyID != "" && o.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("kms: load AWS config: %w", err)
	}

	var kmsOpts []func(*kms.Options)
	if o.Endpoint != "" {
		kmsOpts = append(kmsOpts, func(ko *kms.Options) {
			ko.BaseEndpoint = aws.String(o.Endpoint)
		})
	}

	slog.Info("kms client initialized", "region", region)
	return &Client{client: kms.NewFromConfig(cfg, kmsOpts...)}, nil
}

// Encrypt encrypts plaintext under the given key identifier.
func (c *Client) Encrypt(ctx context.Context, keyID string, plaintext []byte) ([]byte, error) {
	out, err := c.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(keyID),
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("kms encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

// Decrypt decrypts a ciphertext envelope produced by Encrypt.
func (c *Client) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	out, err := c.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("kms decrypt: %w", err)
	}
	return out.Plaintext, nil
}
