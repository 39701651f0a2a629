package natmod

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Publisher stores a local file under a key in remote storage.
type Publisher interface {
	UploadLocalFile(ctx context.Context, key, filePath string) error
}

// R2Client wraps the S3 client for Cloudflare R2.
type R2Client struct {
	Client     *s3.Client
	BucketName string
}

// r2Configured reports whether every R2 credential is present.
func r2Configured(cfg *Config) bool {
	for _, k := range []string{"R2_ACCOUNT_ID", "R2_ACCESS_KEY_ID", "R2_SECRET_ACCESS_KEY", "R2_BUCKET_NAME"} {
		if cfg.Values[k] == "" {
			return false
		}
	}
	return true
}

// NewR2Client initializes a new R2 client using configuration values.
func NewR2Client(ctx context.Context, cfg *Config) (*R2Client, error) {
	if !r2Configured(cfg) {
		return nil, fmt.Errorf("%w: R2 credentials missing (R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_BUCKET_NAME)", ErrNoPublisher)
	}
	accountID := cfg.Values["R2_ACCOUNT_ID"]

	options := []func(*config.LoadOptions) error{
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Values["R2_ACCESS_KEY_ID"], cfg.Values["R2_SECRET_ACCESS_KEY"], "")),
		config.WithRegion("auto"),
	}
	if Debug {
		options = append(options, config.WithClientLogMode(aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	endpoint := cfg.Values["R2_ENDPOINT"]
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Client{
		Client:     client,
		BucketName: cfg.Values["R2_BUCKET_NAME"],
	}, nil
}

// UploadLocalFile uploads a file from disk to R2.
func (r *R2Client) UploadLocalFile(ctx context.Context, key, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	_, err = r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.BucketName),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentTypeFor(key)),
	})
	return err
}

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".yaml"):
		return "application/yaml"
	case strings.HasSuffix(key, ".xz"):
		return "application/x-xz"
	}
	return "application/octet-stream"
}

// publishKey places name under prefix, using forward slashes on every OS.
func publishKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// PublishArtifact uploads the artifact and, when present, its build record.
// It returns the keys written.
func PublishArtifact(ctx context.Context, pub Publisher, prefix, artifact string) ([]string, error) {
	printBlock("Publishing artifact")

	if !fileExists(artifact) {
		return nil, fmt.Errorf("artifact %s not found", artifact)
	}
	files := []string{artifact}
	if rec := recordPath(artifact); fileExists(rec) {
		files = append(files, rec)
	}

	var keys []string
	for _, f := range files {
		key := publishKey(prefix, filepath.Base(f))
		if err := pub.UploadLocalFile(ctx, key, f); err != nil {
			errorf("Upload of %s failed: %v", f, err)
			return keys, fmt.Errorf("failed to upload %s: %w", f, err)
		}
		infof("Uploaded %s", key)
		keys = append(keys, key)
	}
	return keys, nil
}
