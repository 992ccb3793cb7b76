package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the slice of the S3 client the adapter uses.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 is the flat-namespace object-store adapter. Containers are key
// prefixes ("<databaseID>/"), partitions are JSON objects under them,
// and an empty marker object pins a container that has no blobs yet.
type S3 struct {
	client s3API
	bucket string
}

const s3ContainerMarker = ".container"

// NewS3 creates an S3 store over an existing client.
func NewS3(client s3API, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

// NewS3FromConfig creates an S3 store using the ambient AWS configuration
// (environment, shared config files, instance role).
func NewS3FromConfig(ctx context.Context, bucket string) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3(s3.NewFromConfig(cfg), bucket), nil
}

func (s *S3) objectKey(databaseID, name string) string {
	return path.Join(databaseID, name+".json")
}

// CreateContainer implements Store.
func (s *S3) CreateContainer(ctx context.Context, databaseID string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path.Join(databaseID, s3ContainerMarker)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("create container %s: %w", databaseID, err)
	}
	return nil
}

// Exists implements Store.
func (s *S3) Exists(ctx context.Context, databaseID string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path.Join(databaseID, s3ContainerMarker)),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if !errors.As(err, &nf) {
		return false, fmt.Errorf("head container %s: %w", databaseID, err)
	}

	// No marker; a container written by other tooling still counts if any
	// object lives under its prefix.
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(databaseID + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("list container %s: %w", databaseID, err)
	}
	return len(out.Contents) > 0, nil
}

// ExistsPrefix implements Store.
func (s *S3) ExistsPrefix(ctx context.Context, databaseID, prefix string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(databaseID, prefix)),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, fmt.Errorf("head partition %s/%s: %w", databaseID, prefix, err)
}

// ReadPartition implements Store.
func (s *S3) ReadPartition(ctx context.Context, databaseID, prefix string) (Partition, error) {
	data, err := s.getObject(ctx, s.objectKey(databaseID, prefix))
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("partition %s/%s: %w", databaseID, prefix, ErrPrefixNotFound)
		}
		return nil, err
	}
	return decodePartition(data)
}

// WritePartition implements Store.
func (s *S3) WritePartition(ctx context.Context, databaseID, prefix string, p Partition) error {
	data, err := encodePartition(p)
	if err != nil {
		return err
	}
	return s.putObject(ctx, s.objectKey(databaseID, prefix), data)
}

// ListPrefixes implements Store.
func (s *S3) ListPrefixes(ctx context.Context, databaseID string) ([]string, error) {
	exists, err := s.Exists(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("container %s: %w", databaseID, ErrDatabaseNotFound)
	}

	var prefixes []string
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(databaseID + "/"),
	}
	for {
		out, err := s.client.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("list container %s: %w", databaseID, err)
		}
		for _, obj := range out.Contents {
			name := strings.TrimSuffix(path.Base(aws.ToString(obj.Key)), ".json")
			if isPrefixName(name) {
				prefixes = append(prefixes, name)
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		in.ContinuationToken = out.NextContinuationToken
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

// ListContainers implements Store.
func (s *S3) ListContainers(ctx context.Context) ([]string, error) {
	var ids []string
	in := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Delimiter: aws.String("/"),
	}
	for {
		out, err := s.client.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("list containers: %w", err)
		}
		for _, cp := range out.CommonPrefixes {
			ids = append(ids, strings.TrimSuffix(aws.ToString(cp.Prefix), "/"))
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		in.ContinuationToken = out.NextContinuationToken
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadBlob implements Store.
func (s *S3) ReadBlob(ctx context.Context, databaseID, name string) ([]byte, error) {
	data, err := s.getObject(ctx, s.objectKey(databaseID, name))
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("blob %s/%s: %w", databaseID, name, ErrBlobNotFound)
		}
		return nil, err
	}
	return data, nil
}

// WriteBlob implements Store.
func (s *S3) WriteBlob(ctx context.Context, databaseID, name string, data []byte) error {
	return s.putObject(ctx, s.objectKey(databaseID, name), data)
}

func (s *S3) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

func (s *S3) putObject(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
