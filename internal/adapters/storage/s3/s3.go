// Package s3 stores input assets in an S3 (or S3-compatible) bucket.
package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"renderbridge/internal/pkg/errors"
	"renderbridge/internal/ports"
)

// Config selects the bucket. A non-empty Endpoint targets an S3-compatible
// store and switches to path-style addressing.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// Provider implements ports.StorageProvider on S3.
type Provider struct {
	client  *awss3.Client
	presign *awss3.PresignClient
	bucket  string
	prefix  string
}

var _ ports.StorageProvider = (*Provider)(nil)

// New builds a Provider using the SDK's default credential chain.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *awss3.Client, bucket, prefix string) *Provider {
	return &Provider{
		client:  client,
		presign: awss3.NewPresignClient(client),
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
	}
}

func (p *Provider) Provider() string { return "s3" }

func (p *Provider) key(objectKey string) (string, error) {
	key, err := ports.CleanKey(objectKey)
	if err != nil {
		return "", errors.ValidationField("object_key", err.Error())
	}
	if p.prefix == "" {
		return key, nil
	}
	return path.Join(p.prefix, key), nil
}

func (p *Provider) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	key, err := p.key(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	// The SDK needs a seekable body to sign and checksum the payload.
	body, ok := in.Reader.(io.ReadSeeker)
	size := in.Size
	if !ok {
		data, err := io.ReadAll(in.Reader)
		if err != nil {
			return ports.PutObjectOutput{}, fmt.Errorf("s3 read body: %w", err)
		}
		body = bytes.NewReader(data)
		size = int64(len(data))
	}

	input := &awss3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if in.ContentType != "" {
		input.ContentType = aws.String(in.ContentType)
	}

	if _, err := p.client.PutObject(ctx, input); err != nil {
		return ports.PutObjectOutput{}, p.wrap("put", in.ObjectKey, err)
	}
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: size}, nil
}

func (p *Provider) GetObject(ctx context.Context, objectKey string) (io.ReadCloser, string, int64, error) {
	key, err := p.key(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	out, err := p.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", 0, p.wrap("get", objectKey, err)
	}
	return out.Body, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength), nil
}

func (p *Provider) DeleteObject(ctx context.Context, objectKey string) error {
	key, err := p.key(objectKey)
	if err != nil {
		return err
	}
	_, err = p.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	return p.wrap("delete", objectKey, err)
}

// GetSignedURL presigns a GET for the object. No request is sent.
func (p *Provider) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	key, err := p.key(objectKey)
	if err != nil {
		return ports.SignedURLOutput{}, err
	}
	req, err := p.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(expiresIn))
	if err != nil {
		return ports.SignedURLOutput{}, p.wrap("presign", objectKey, err)
	}
	return ports.SignedURLOutput{URL: req.URL, ExpiresAt: time.Now().UTC().Add(expiresIn)}, nil
}

func (p *Provider) wrap(op, objectKey string, err error) error {
	if err == nil {
		return nil
	}
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if stderrors.As(err, &nsk) || stderrors.As(err, &nf) {
		return errors.NotFound("object", objectKey)
	}
	var status interface{ HTTPStatusCode() int }
	if stderrors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound {
		return errors.NotFound("object", objectKey)
	}
	return errors.Wrapf(err, "s3."+op, "s3 %s %s failed", op, objectKey).WithField("bucket", p.bucket)
}
