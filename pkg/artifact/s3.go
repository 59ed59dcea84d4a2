package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethpandaops/releasekpi/pkg/config"
)

// Compile-time interface check.
var _ Source = (*s3Source)(nil)

type s3Source struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Source creates a Source backed by S3-compatible storage.
func NewS3Source(cfg *config.S3SourceConfig) Source {
	return &s3Source{
		client: newS3Client(cfg),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}
}

func (s *s3Source) projectsPrefix() string {
	if s.prefix == "" {
		return ""
	}

	return s.prefix + "/"
}

// Projects lists project keys (common prefixes) under {prefix}/.
func (s *s3Source) Projects(ctx context.Context) ([]string, error) {
	prefix := s.projectsPrefix()

	paginator := s3.NewListObjectsV2Paginator(
		s.client, &s3.ListObjectsV2Input{
			Bucket:    aws.String(s.bucket),
			Prefix:    aws.String(prefix),
			Delimiter: aws.String("/"),
		},
	)

	var projects []string

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf(
				"listing project prefixes under %q: %w", prefix, err,
			)
		}

		for _, cp := range page.CommonPrefixes {
			if cp.Prefix != nil {
				projects = append(projects,
					path.Base(strings.TrimRight(*cp.Prefix, "/")))
			}
		}
	}

	sort.Strings(projects)

	return projects, nil
}

// ReadFile reads {prefix}/{project}/{filename} from S3.
// Returns (nil, nil) when the key does not exist.
func (s *s3Source) ReadFile(
	ctx context.Context, project, filename string,
) ([]byte, error) {
	key := s.projectsPrefix() + project + "/" + filename

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting object %q: %w", key, err)
	}

	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", key, err)
	}

	return data, nil
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	return strings.Contains(err.Error(), "NoSuchKey")
}

func newS3Client(cfg *config.S3SourceConfig) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}
