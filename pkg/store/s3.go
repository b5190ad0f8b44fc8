package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/edoloughlin/nasc/pkg/engine"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store persists instance state as JSON objects at
// "<prefix><type>/<id>.json". Object storage offers no per-key write
// serialization; concurrent events for one instance can lose updates, as
// documented on the processor's Store contract.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// S3StoreOption configures S3Store behavior.
type S3StoreOption func(*S3Store)

// WithS3KeyPrefix sets the object key prefix. Default: "nasc/".
func WithS3KeyPrefix(prefix string) S3StoreOption {
	return func(s *S3Store) {
		s.prefix = prefix
	}
}

// NewS3Store creates an S3-backed store over an existing client.
func NewS3Store(client S3API, bucket string, opts ...S3StoreOption) *S3Store {
	s := &S3Store{client: client, bucket: bucket, prefix: "nasc/"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenS3 creates an S3-backed store using the ambient AWS configuration.
func OpenS3(ctx context.Context, bucket string, opts ...S3StoreOption) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Store(s3.NewFromConfig(cfg), bucket, opts...), nil
}

// Load returns the last persisted state for (typ, id), or nil.
func (s *S3Store) Load(ctx context.Context, typ, id string) (engine.State, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(typ, id)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("s3 load %s:%s: %w", typ, id, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s:%s: %w", typ, id, err)
	}
	var state engine.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("s3 decode %s:%s: %w", typ, id, err)
	}
	return state, nil
}

// Persist replaces the stored state for (typ, id) with full.
func (s *S3Store) Persist(ctx context.Context, typ, id string, _, full engine.State) error {
	data, err := json.Marshal(full)
	if err != nil {
		return fmt.Errorf("s3 marshal %s:%s: %w", typ, id, err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(typ, id)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 persist %s:%s: %w", typ, id, err)
	}
	return nil
}

func (s *S3Store) key(typ, id string) string {
	return s.prefix + typ + "/" + id + ".json"
}
