// Package s3 stores file records as JSON documents in an S3 or MinIO
// bucket, one object per record under users/{owner}/files/{id}.json.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/lemesvini/codeLog/internal/files"
	"github.com/lemesvini/codeLog/internal/logging"
	"github.com/lemesvini/codeLog/internal/store"
)

// Config describes the bucket connection.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// Store is an S3-backed document store.
type Store struct {
	client *s3.Client
	bucket string
}

// New connects to the bucket, creating it if it does not exist.
func New(ctx context.Context, cfg Config) (*Store, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
			}, nil
		},
	)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	s := &Store{client: client, bucket: cfg.Bucket}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}
	if _, createErr := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	}); createErr != nil {
		return fmt.Errorf("bucket %s does not exist and cannot create: %w", s.bucket, createErr)
	}
	logging.Info("created S3 bucket", zap.String("bucket", s.bucket))
	return nil
}

// Type returns "s3".
func (s *Store) Type() string { return "s3" }

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *Store) Close() error { return nil }

// Collection returns the collection for owner.
func (s *Store) Collection(owner string) store.Collection {
	return &collection{s: s, prefix: path.Join("users", owner, "files") + "/"}
}

type collection struct {
	s      *Store
	prefix string
}

func (c *collection) key(id string) string {
	return c.prefix + id + ".json"
}

func (c *collection) Insert(ctx context.Context, r files.Record) (string, error) {
	r.ID = files.NewID()
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	if err := c.put(ctx, r); err != nil {
		return "", err
	}
	return r.ID, nil
}

func (c *collection) FetchAll(ctx context.Context) ([]files.Record, error) {
	var out []files.Record
	p := s3.NewListObjectsV2Paginator(c.s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.s.bucket),
		Prefix: aws.String(c.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", c.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			r, err := c.get(ctx, key)
			if errors.Is(err, store.ErrNotFound) {
				continue // deleted between list and get
			}
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (c *collection) FetchWhere(ctx context.Context, field, value string) ([]files.Record, error) {
	if !store.ValidField(field) {
		return nil, store.ErrUnsupportedField
	}
	all, err := c.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return store.Filter(all, field, value)
}

// UpdateByID reads, patches and rewrites the document. Concurrent updates
// to the same record are last-writer-wins.
func (c *collection) UpdateByID(ctx context.Context, id string, p files.Patch) error {
	r, err := c.get(ctx, c.key(id))
	if err != nil {
		return err
	}
	p.Apply(&r)
	return c.put(ctx, r)
}

func (c *collection) DeleteByID(ctx context.Context, id string) error {
	_, err := c.s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.s.bucket),
		Key:    aws.String(c.key(id)),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	logging.Debug("S3 delete object", zap.String("key", c.key(id)))
	return nil
}

func (c *collection) get(ctx context.Context, key string) (files.Record, error) {
	out, err := c.s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return files.Record{}, store.ErrNotFound
		}
		return files.Record{}, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return files.Record{}, fmt.Errorf("read object %s: %w", key, err)
	}
	var r files.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return files.Record{}, fmt.Errorf("decode object %s: %w", key, err)
	}
	return r, nil
}

func (c *collection) put(ctx context.Context, r files.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", r.ID, err)
	}
	key := c.key(r.ID)
	_, err = c.s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	logging.Debug("S3 put object", zap.String("key", key), zap.Int("size", len(data)))
	return nil
}
