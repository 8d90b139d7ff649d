package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"reportviewer/internal/config"
	applog "reportviewer/internal/log"
)

const legalDetailsFile = "legal_details.md"

// LegalDetailsKey is the path of a month's legal details relative to the
// summaries root, e.g. "2024/03/legal_details.md".
func LegalDetailsKey(year, month int) string {
	return path.Join(fmt.Sprintf("%d", year), fmt.Sprintf("%02d", month), legalDetailsFile)
}

// LocalStore writes legal details under the summaries directory of the
// data tree.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

func NewLocalStore(summariesDir string, logger *slog.Logger) *LocalStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalStore{
		root:   summariesDir,
		logger: logger.With(applog.FieldComponent, applog.ComponentStorage),
	}
}

// SaveLegalDetails implements legal.Store. The returned location is the
// written file path.
func (s *LocalStore) SaveLegalDetails(ctx context.Context, year, month int, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.Join(s.root, filepath.FromSlash(LegalDetailsKey(year, month)))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("create month directory: %w", err)
	}

	// Write then rename so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(target), ".legal-*.md")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write legal details: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close legal details: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("chmod legal details: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename legal details: %w", err)
	}

	s.logger.InfoContext(ctx, "Legal details written",
		applog.FieldOperation, applog.OpSave,
		applog.FieldLocation, target)
	return target, nil
}

// ObjectPutter is the subset of the S3 client S3Store needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes legal details to a bucket under summaries/<year>/<MM>/.
type S3Store struct {
	client ObjectPutter
	bucket string
	logger *slog.Logger
}

// NewS3Store loads AWS configuration, using static credentials when both
// keys are set and the default chain otherwise.
func NewS3Store(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return NewS3StoreWithClient(s3.NewFromConfig(awsCfg), cfg.S3Bucket, logger), nil
}

func NewS3StoreWithClient(client ObjectPutter, bucket string, logger *slog.Logger) *S3Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{
		client: client,
		bucket: bucket,
		logger: logger.With(applog.FieldComponent, applog.ComponentStorage),
	}
}

// SaveLegalDetails implements legal.Store. The returned location is an
// s3:// URI.
func (s *S3Store) SaveLegalDetails(ctx context.Context, year, month int, content string) (string, error) {
	key := path.Join("summaries", LegalDetailsKey(year, month))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         strings.NewReader(content),
		ContentType:  aws.String("text/markdown; charset=utf-8"),
		CacheControl: aws.String("no-store"),
	})
	if err != nil {
		return "", fmt.Errorf("upload legal details to S3: %w", err)
	}

	location := fmt.Sprintf("s3://%s/%s", s.bucket, key)
	s.logger.InfoContext(ctx, "Legal details uploaded",
		applog.FieldOperation, applog.OpSave,
		applog.FieldLocation, location)
	return location, nil
}

// LegalStore is implemented by LocalStore and S3Store.
type LegalStore interface {
	SaveLegalDetails(ctx context.Context, year, month int, content string) (string, error)
}

// NewLegalStore picks the backend named by cfg.LegalStore.
func NewLegalStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (LegalStore, error) {
	switch cfg.LegalStore {
	case "", "local":
		return NewLocalStore(cfg.SummariesDir(), logger), nil
	case "s3":
		return NewS3Store(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown legal store %q", cfg.LegalStore)
	}
}
