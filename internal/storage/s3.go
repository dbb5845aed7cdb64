package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Options configures an S3Sink.
type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
	// Password enables the GCM envelope when set.
	Password string
	// Versioned stores name as <base>_v<N>.<ext> instead of overwriting.
	Versioned bool
}

// S3Sink uploads artifacts to a bucket.
type S3Sink struct {
	client    *s3.Client
	uploader  *manager.Uploader
	bucket    string
	prefix    string
	password  string
	versioned bool
}

// FileMetadata represents metadata about a stored artifact
type FileMetadata struct {
	OriginalName     string            `json:"original_name"`
	ContentType      string            `json:"content_type"`
	Size             int64             `json:"size"`
	Encrypted        bool              `json:"encrypted"`
	Metadata         map[string]string `json:"metadata"`
	EncryptionFormat string            `json:"encryption_format,omitempty"`
}

// NewS3Sink loads the AWS default config (static keys win when given).
func NewS3Sink(ctx context.Context, opts S3Options) (*S3Sink, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 sink: bucket not configured")
	}
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3SinkFromClient(s3.NewFromConfig(cfg), opts), nil
}

// NewS3SinkFromClient wraps an existing client.
func NewS3SinkFromClient(client *s3.Client, opts S3Options) *S3Sink {
	return &S3Sink{
		client:    client,
		uploader:  manager.NewUploader(client),
		bucket:    opts.Bucket,
		prefix:    strings.Trim(opts.Prefix, "/"),
		password:  opts.Password,
		versioned: opts.Versioned,
	}
}

// Client returns the underlying S3 client.
func (s *S3Sink) Client() *s3.Client { return s.client }

// Bucket returns the target bucket.
func (s *S3Sink) Bucket() string { return s.bucket }

func (s *S3Sink) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Save uploads data under prefix/name and returns the s3:// URL.
func (s *S3Sink) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	key := s.key(name)
	if s.versioned {
		ext := path.Ext(key)
		base := strings.TrimSuffix(key, ext)
		n, err := s.ListNextVersion(ctx, base)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("version listing failed; using v1")
		}
		key = fmt.Sprintf("%s_v%d%s", base, n, ext)
	}

	body := data
	meta := map[string]string{"name": name}
	if s.password != "" {
		enc, err := EncryptGCM(data, s.password)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt data: %w", err)
		}
		body = enc
		meta["encrypted"] = "true"
		meta["encryption-format"] = gcmMagic
	}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    meta,
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("s3 upload failed")
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().
		Str("key", key).
		Str("location", out.Location).
		Bool("encrypted", s.password != "").
		Int("size", len(body)).
		Msg("uploaded artifact to S3")
	return "s3://" + s.bucket + "/" + key, nil
}

// Download fetches an artifact and opens the envelope when it is encrypted.
func (s *S3Sink) Download(ctx context.Context, key string) ([]byte, *FileMetadata, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read S3 object: %w", err)
	}

	meta := &FileMetadata{Metadata: make(map[string]string)}
	for k, v := range result.Metadata {
		meta.Metadata[strings.ToLower(k)] = v
	}
	meta.OriginalName = meta.Metadata["name"]
	meta.EncryptionFormat = meta.Metadata["encryption-format"]
	if result.ContentType != nil {
		meta.ContentType = *result.ContentType
	}

	if bytes.HasPrefix(data, []byte(gcmMagic)) {
		meta.Encrypted = true
		meta.EncryptionFormat = gcmMagic
		data, err = DecryptGCM(data, s.password)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decrypt data: %w", err)
		}
	}
	meta.Size = int64(len(data))
	return data, meta, nil
}

// ListNextVersion returns the next available integer suffix for a base key using pattern baseKey_v{N}
func (s *S3Sink) ListNextVersion(ctx context.Context, baseKey string) (int, error) {
	if baseKey == "" {
		return 1, nil
	}

	prefix := baseKey + "_v"
	maxVersion := 0

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 1, fmt.Errorf("list versions failed: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			verStr := strings.TrimPrefix(*obj.Key, prefix)
			verStr = strings.TrimSuffix(verStr, path.Ext(verStr))
			if n, err := strconv.Atoi(verStr); err == nil && n > maxVersion {
				maxVersion = n
			}
		}
	}

	return maxVersion + 1, nil
}
