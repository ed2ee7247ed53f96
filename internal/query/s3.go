package query

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/rescale/livelist/internal/config"
	"github.com/rescale/livelist/internal/http"
	"github.com/rescale/livelist/internal/models"
)

// DetailFull asks listing backends for every metadata field they have.
const DetailFull = "full"

// S3 lists objects of a bucket as records. Each source is a key prefix
// below the configured prefix.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	retry  http.Config
}

// NewS3 creates an S3 listing backend. Static credentials are used when an
// access key is configured, otherwise the default AWS credential chain.
func NewS3(ctx context.Context, backend config.BackendConfig, proxy config.ProxyConfig) (*S3, error) {
	if backend.Bucket == "" {
		return nil, config.ErrMissingBucket
	}

	// Create shared optimized HTTP client with proxy support
	httpClient, err := http.CreateOptimizedClient(proxy, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(httpClient),
	}
	if backend.Region != "" {
		opts = append(opts, awsconfig.WithRegion(backend.Region))
	}
	if backend.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			backend.AccessKey,
			backend.SecretKey,
			"",
		)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if backend.Endpoint != "" {
			o.BaseEndpoint = aws.String(backend.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{
		client: client,
		bucket: backend.Bucket,
		prefix: backend.Prefix,
		retry:  retryConfig(backend.MaxRetries, "s3"),
	}, nil
}

// Query lists every source prefix, filters the objects with the request
// expression and applies ordering and the offset/limit window.
func (b *S3) Query(ctx context.Context, req Request) ([]models.Record, error) {
	if req.Expr.IsFalse() {
		return nil, nil
	}

	var matched []models.Record
	for _, prefix := range prefixes(b.prefix, req.Sources) {
		paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(b.bucket),
			Prefix: aws.String(prefix),
		})

		for paginator.HasMorePages() {
			var page *s3.ListObjectsV2Output
			err := http.ExecuteWithRetry(ctx, b.retry, func() error {
				var pageErr error
				page, pageErr = paginator.NextPage(ctx)
				return pageErr
			})
			if err != nil {
				return nil, fmt.Errorf("failed to list s3://%s/%s: %w", b.bucket, prefix, err)
			}

			for _, obj := range page.Contents {
				r := objectRecord(b.bucket, obj, req.Detail)
				if req.Expr.Match(r) {
					matched = append(matched, r)
				}
			}
		}
	}

	sortRecords(matched, req.OrderBy)
	return Window(matched, req.Offset, req.Limit), nil
}

// objectRecord converts a listed object to a record identified by "key".
func objectRecord(bucket string, obj types.Object, detail string) models.Record {
	key := aws.ToString(obj.Key)
	fields := map[string]any{
		"key":  key,
		"name": path.Base(key),
		"size": aws.ToInt64(obj.Size),
	}
	if obj.LastModified != nil {
		fields["modified"] = obj.LastModified.UTC()
	}
	if detail == DetailFull {
		fields["etag"] = strings.Trim(aws.ToString(obj.ETag), `"`)
		fields["storage_class"] = string(obj.StorageClass)
	}
	return models.NewRecord("s3://"+bucket+"/"+key, fields)
}

// prefixes joins each source to the base prefix. No sources lists the base
// prefix itself.
func prefixes(base string, sources []string) []string {
	if len(sources) == 0 {
		return []string{base}
	}
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		out = append(out, base+s)
	}
	return out
}

// sortRecords orders records by field when field is set and keeps listing
// order otherwise.
func sortRecords(records []models.Record, field string) {
	if field == "" {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		return compareValues(records[i].Fields[field], records[j].Fields[field]) < 0
	})
}

// retryConfig builds the listing retry policy and logs every retry.
func retryConfig(maxRetries int, backend string) http.Config {
	cfg := http.DefaultConfig()
	if maxRetries > 0 {
		cfg.MaxRetries = maxRetries
	}
	cfg.OnRetry = func(attempt int, err error, errType http.ErrorType) {
		log.Warn().
			Err(err).
			Str("backend", backend).
			Int("attempt", attempt).
			Str("error_type", http.ErrorTypeName(errType)).
			Msg("Retrying listing")
	}
	return cfg
}
