package query

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/rescale/livelist/internal/config"
	"github.com/rescale/livelist/internal/http"
	"github.com/rescale/livelist/internal/models"
)

// Azure lists blobs of a container as records. Each source is a name
// prefix below the configured prefix.
type Azure struct {
	client    *azblob.Client
	account   string
	container string
	prefix    string
	retry     http.Config
}

// NewAzure creates an Azure Blob listing backend. A SAS URL takes
// precedence over an account key.
func NewAzure(backend config.BackendConfig, proxy config.ProxyConfig) (*Azure, error) {
	containerName := backend.Container
	sasURL := backend.SASURL
	if sasURL != "" {
		// A container SAS carries the container in its path; the client
		// addresses it by name instead
		parts, err := azblob.ParseURL(sasURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SAS URL: %w", err)
		}
		if parts.ContainerName != "" {
			if containerName == "" {
				containerName = parts.ContainerName
			}
			parts.ContainerName = ""
			parts.BlobName = ""
			sasURL = parts.String()
		}
	}
	if containerName == "" {
		return nil, config.ErrMissingContainer
	}

	// Create shared optimized HTTP client with proxy support
	httpClient, err := http.CreateOptimizedClient(proxy, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: httpClient, // Preserve connection pool
		},
	}

	var client *azblob.Client
	switch {
	case sasURL != "":
		client, err = azblob.NewClientWithNoCredential(sasURL, opts)
	case backend.Account != "" && backend.AccountKey != "":
		cred, credErr := azblob.NewSharedKeyCredential(backend.Account, backend.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL(backend), cred, opts)
	default:
		client, err = azblob.NewClientWithNoCredential(serviceURL(backend), opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &Azure{
		client:    client,
		account:   backend.Account,
		container: containerName,
		prefix:    backend.Prefix,
		retry:     retryConfig(backend.MaxRetries, "azure"),
	}, nil
}

// serviceURL returns the blob endpoint of the account, or the configured
// endpoint when set.
func serviceURL(backend config.BackendConfig) string {
	if backend.Endpoint != "" {
		return strings.TrimSuffix(backend.Endpoint, "/") + "/"
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", backend.Account)
}

// Query lists every source prefix, filters the blobs with the request
// expression and applies ordering and the offset/limit window.
func (b *Azure) Query(ctx context.Context, req Request) ([]models.Record, error) {
	if req.Expr.IsFalse() {
		return nil, nil
	}

	var matched []models.Record
	for _, prefix := range prefixes(b.prefix, req.Sources) {
		pager := b.client.NewListBlobsFlatPager(b.container, &azblob.ListBlobsFlatOptions{
			Prefix: &prefix,
		})

		for pager.More() {
			var page azblob.ListBlobsFlatResponse
			err := http.ExecuteWithRetry(ctx, b.retry, func() error {
				var pageErr error
				page, pageErr = pager.NextPage(ctx)
				return pageErr
			})
			if err != nil {
				return nil, fmt.Errorf("failed to list %s/%s: %w", b.container, prefix, err)
			}
			if page.Segment == nil {
				continue
			}

			for _, item := range page.Segment.BlobItems {
				r := blobRecord(b.account, b.container, item, req.Detail)
				if req.Expr.Match(r) {
					matched = append(matched, r)
				}
			}
		}
	}

	sortRecords(matched, req.OrderBy)
	return Window(matched, req.Offset, req.Limit), nil
}

// blobRecord converts a listed blob to a record identified by "key".
func blobRecord(account, containerName string, item *container.BlobItem, detail string) models.Record {
	key := ""
	if item.Name != nil {
		key = *item.Name
	}
	fields := map[string]any{
		"key":  key,
		"name": path.Base(key),
	}
	if props := item.Properties; props != nil {
		if props.ContentLength != nil {
			fields["size"] = *props.ContentLength
		}
		if props.LastModified != nil {
			fields["modified"] = props.LastModified.UTC()
		}
		if detail == DetailFull {
			if props.ETag != nil {
				fields["etag"] = strings.Trim(string(*props.ETag), `"`)
			}
			if props.ContentType != nil {
				fields["content_type"] = *props.ContentType
			}
		}
	}
	return models.NewRecord(fmt.Sprintf("azure://%s/%s/%s", account, containerName, key), fields)
}
