// Package azure stores committed files as block blobs in an Azure storage
// container.
package azure

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	"github.com/exchangesets/fsstransfer/internal/assembler"
	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	azContainer "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// Store is an artifact store in an Azure container.
type Store struct {
	cfg       Config
	container *azContainer.Client
	blockSize int
}

// make sure that *Store implements assembler.ArtifactStore
var _ assembler.ArtifactStore = &Store{}

const defaultBlockSize = 100 * 1024 * 1024

// Open returns a store for the container in cfg. Without an account key or
// SAS token the default Azure credential chain is used.
func Open(_ context.Context, cfg Config, rt http.RoundTripper) (*Store, error) {
	debug.Log("open, account %v container %v", cfg.AccountName, cfg.Container)

	endpointSuffix := cfg.EndpointSuffix
	if endpointSuffix == "" {
		endpointSuffix = "core.windows.net"
	}
	url := fmt.Sprintf("https://%s.blob.%s/%s", cfg.AccountName, endpointSuffix, cfg.Container)
	opts := &azContainer.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: &http.Client{Transport: rt},
		},
	}

	var client *azContainer.Client
	var err error

	switch {
	case cfg.AccountKey.String() != "":
		debug.Log(" - using account key")
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey.Unwrap())
		if err != nil {
			return nil, errors.Wrap(err, "NewSharedKeyCredential")
		}

		client, err = azContainer.NewClientWithSharedKeyCredential(url, cred, opts)
		if err != nil {
			return nil, errors.Wrap(err, "NewClientWithSharedKeyCredential")
		}

	case cfg.AccountSAS.String() != "":
		debug.Log(" - using sas token")
		sas := cfg.AccountSAS.Unwrap()
		if sas[0] == '?' {
			sas = sas[1:]
		}

		client, err = azContainer.NewClientWithNoCredential(url+"?"+sas, opts)
		if err != nil {
			return nil, errors.Wrap(err, "NewClientWithNoCredential")
		}

	default:
		debug.Log(" - using DefaultAzureCredential")
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, errors.Wrap(err, "NewDefaultAzureCredential")
		}

		client, err = azContainer.NewClient(url, cred, opts)
		if err != nil {
			return nil, errors.Wrap(err, "NewClient")
		}
	}

	return &Store{
		cfg:       cfg,
		container: client,
		blockSize: defaultBlockSize,
	}, nil
}

func (s *Store) objectName(batchID, fileName string) (string, error) {
	return assembler.ObjectName(s.cfg.Prefix, batchID, fileName)
}

// Put stages the data in blocks and commits them as one block blob. Each
// block is validated with its MD5 by the service.
func (s *Store) Put(ctx context.Context, batchID, fileName string, rd io.Reader, size int64) error {
	objName, err := s.objectName(batchID, fileName)
	if err != nil {
		return err
	}
	blockBlobClient := s.container.NewBlockBlobClient(objName)

	buf := make([]byte, s.blockSize)
	blocks := []string{}
	var uploaded int64

	for {
		n, err := io.ReadFull(rd, buf)
		if err == io.ErrUnexpectedEOF {
			err = nil
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "ReadFull")
		}

		data := buf[:n]
		uploaded += int64(n)

		// the base64 encoded MD5 doubles as the block id
		h := md5.Sum(data)
		id := base64.StdEncoding.EncodeToString(h[:])

		debug.Log("StageBlock %v with %d bytes", id, n)
		_, err = blockBlobClient.StageBlock(ctx, id, streaming.NopCloser(bytes.NewReader(data)), &blockblob.StageBlockOptions{
			TransactionalValidation: blob.TransferValidationTypeMD5(h[:]),
		})
		if err != nil {
			return errors.Wrap(err, "StageBlock")
		}

		blocks = append(blocks, id)
	}

	// sanity check
	if uploaded != size {
		return errors.Errorf("wrote %d bytes instead of the expected %d bytes", uploaded, size)
	}

	_, err = blockBlobClient.CommitBlockList(ctx, blocks, &blockblob.CommitBlockListOptions{})
	debug.Log("committed %v with %d blocks", objName, len(blocks))
	return errors.Wrap(err, "CommitBlockList")
}

// Open implements assembler.ArtifactStore.
func (s *Store) Open(ctx context.Context, batchID, fileName string) (io.ReadCloser, int64, error) {
	objName, err := s.objectName(batchID, fileName)
	if err != nil {
		return nil, 0, err
	}
	blobClient := s.container.NewBlobClient(objName)

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "DownloadStream")
	}

	var size int64
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	return resp.Body, size, nil
}

// IsNotExist returns true if the error is caused by a not existing file.
func (s *Store) IsNotExist(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound)
}
