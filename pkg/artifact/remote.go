// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package artifact

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// UploadRemote pushes an already-encoded packfile to a blob container, the
// optional remote sink alongside WriteFile's local atomic write — used
// when the caller configures a storage account instead of (or in
// addition to) a local output path.
func UploadRemote(ctx context.Context, accountName, accountKey, containerName, blobName string, data []byte) error {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return fmt.Errorf("artifact: remote credential: %w", err)
	}
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	u, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", accountName, containerName))
	if err != nil {
		return fmt.Errorf("artifact: remote container URL: %w", err)
	}
	containerURL := azblob.NewContainerURL(*u, pipeline)
	blobURL := containerURL.NewBlockBlobURL(blobName)

	_, err = blobURL.Upload(ctx, bytes.NewReader(data), azblob.BlobHTTPHeaders{},
		azblob.Metadata{}, azblob.BlobAccessConditions{}, azblob.DefaultAccessTier,
		nil, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return fmt.Errorf("artifact: remote upload: %w", err)
	}
	return nil
}
