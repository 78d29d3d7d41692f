// Package azure implements the Azure Blob Storage backend. Stored exports are fetched through
// read-only SAS URLs signed with the account's shared key.
package azure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/aitool-portal/aitool-portal/internal/config"
	"github.com/aitool-portal/aitool-portal/internal/storage"
	"github.com/aitool-portal/aitool-portal/pkg/checksum"
)

// sasClockSkew backdates SAS start times
const sasClockSkew = 5 * time.Minute

func init() {
	storage.Register("azure", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Azure)
	})
}

// AzureStorage implements storage.Storage on a blob container
type AzureStorage struct {
	client        *azblob.Client
	credential    *azblob.SharedKeyCredential
	containerName string
}

// New creates a shared-key client for the configured account
func New(cfg *config.AzureStorageConfig) (*AzureStorage, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure storage container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &AzureStorage{
		client:        client,
		credential:    credential,
		containerName: cfg.ContainerName,
	}, nil
}

func (s *AzureStorage) container() *container.Client {
	return s.client.ServiceClient().NewContainerClient(s.containerName)
}

// Upload stores the blob with its checksum as metadata and the download headers set
func (s *AzureStorage) Upload(ctx context.Context, objectPath string, body io.Reader, opts storage.UploadOptions) (*storage.UploadResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	sum := checksum.Sum(data)

	headers := &blob.HTTPHeaders{}
	if opts.ContentType != "" {
		headers.BlobContentType = &opts.ContentType
	}
	if opts.ContentDisposition != "" {
		headers.BlobContentDisposition = &opts.ContentDisposition
	}

	_, err = s.container().NewBlockBlobClient(objectPath).Upload(ctx,
		streaming.NopCloser(bytes.NewReader(data)),
		&blockblob.UploadOptions{
			Metadata:    map[string]*string{storage.ChecksumMetadataKey: &sum},
			HTTPHeaders: headers,
		})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	return &storage.UploadResult{Path: objectPath, Size: int64(len(data)), Checksum: sum}, nil
}

// Download streams the blob body
func (s *AzureStorage) Download(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	resp, err := s.container().NewBlobClient(objectPath).DownloadStream(ctx, nil)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, objectPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download from Azure Blob: %w", err)
	}
	return resp.Body, nil
}

// Delete removes the blob; a missing blob is not an error
func (s *AzureStorage) Delete(ctx context.Context, objectPath string) error {
	_, err := s.container().NewBlobClient(objectPath).Delete(ctx, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete from Azure Blob: %w", err)
	}
	return nil
}

// GetURL returns a read-only SAS URL valid for ttl
func (s *AzureStorage) GetURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	exists, err := s.Exists(ctx, objectPath)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, objectPath)
	}
	if s.credential == nil {
		return "", storage.ErrSignedURLUnsupported
	}

	now := time.Now().UTC()
	params, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPSandHTTP,
		StartTime:     now.Add(-sasClockSkew),
		ExpiryTime:    now.Add(ttl),
		Permissions:   (&sas.BlobPermissions{Read: true}).String(),
		ContainerName: s.containerName,
		BlobName:      objectPath,
	}.SignWithSharedKey(s.credential)
	if err != nil {
		return "", fmt.Errorf("failed to generate SAS token: %w", err)
	}

	return s.container().NewBlobClient(objectPath).URL() + "?" + params.Encode(), nil
}

// Exists reads the blob properties
func (s *AzureStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, err := s.container().NewBlobClient(objectPath).GetProperties(ctx, nil)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check blob existence: %w", err)
	}
	return true, nil
}

// GetMetadata reads size, type and the stored checksum from the blob properties
func (s *AzureStorage) GetMetadata(ctx context.Context, objectPath string) (*storage.FileMetadata, error) {
	props, err := s.container().NewBlobClient(objectPath).GetProperties(ctx, nil)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, objectPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob properties: %w", err)
	}

	meta := &storage.FileMetadata{Path: objectPath}
	if props.ContentLength != nil {
		meta.Size = *props.ContentLength
	}
	if props.ContentType != nil {
		meta.ContentType = *props.ContentType
	}
	if props.LastModified != nil {
		meta.LastModified = *props.LastModified
	}
	// metadata keys come back in canonical header case
	for k, v := range props.Metadata {
		if v != nil && strings.EqualFold(k, storage.ChecksumMetadataKey) {
			meta.Checksum = *v
		}
	}
	return meta, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
