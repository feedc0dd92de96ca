// Package fss implements the wire contract of the File Share Service: the
// JSON documents exchanged with it and an HTTP client for batches, file
// records, blocks, block lists and downloads.
package fss

import (
	"strings"
	"time"
)

// Attribute is one key/value pair of a batch or file attribute bag.
type Attribute struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Attributes is an attribute bag. A nil bag is distinct from an empty one:
// nil means the service did not send attributes at all.
type Attributes []Attribute

// Get returns the value stored under key, compared case-insensitively.
func (a Attributes) Get(key string) (string, bool) {
	for _, attr := range a {
		if strings.EqualFold(attr.Key, key) {
			return attr.Value, true
		}
	}
	return "", false
}

// Well-known attribute keys of S-100 exchange set batches.
const (
	AttrProductName   = "ProductName"
	AttrEditionNumber = "EditionNumber"
	AttrUpdateNumber  = "UpdateNumber"
	AttrBusinessUnit  = "BusinessUnit"
)

// CreateBatchRequest is the body of POST /batch.
type CreateBatchRequest struct {
	BusinessUnit string     `json:"businessUnit"`
	Attributes   Attributes `json:"attributes,omitempty"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
}

// CreateBatchResponse is returned by POST /batch.
type CreateBatchResponse struct {
	BatchID string `json:"batchId"`
}

// FileRecordRequest is the body of POST /batch/{batchId}/files/{fileName}.
type FileRecordRequest struct {
	Attributes Attributes `json:"attributes"`
}

// CommitRequest is the body of the write-block-list request
// PUT /batch/{batchId}/files/{fileName}.
type CommitRequest struct {
	BlockIDs []string `json:"blockIds"`
}

// ClientError is the error document returned for a rejected write block
// list: a message and an example of the expected block ids.
type ClientError struct {
	Message  string   `json:"message"`
	BlockIDs []string `json:"blockIds,omitempty"`
}

// ErrorDetail is one entry of a ServerError.
type ErrorDetail struct {
	Source      string `json:"source"`
	Description string `json:"description"`
}

// ServerError is the error document returned by all other endpoints.
type ServerError struct {
	CorrelationID string        `json:"correlationId"`
	Errors        []ErrorDetail `json:"errors"`
}

// BatchStatus values reported by GET /batch/{batchId}/status.
const (
	StatusIncomplete = "Incomplete"
	StatusCommitting = "CommitInProgress"
	StatusCommitted  = "Committed"
	StatusFailed     = "Failed"
)

// BatchStatusResponse is returned by GET /batch/{batchId}/status.
type BatchStatusResponse struct {
	BatchID string `json:"batchId"`
	Status  string `json:"status"`
}

// FileDescriptor describes one file of a remote batch. A nil FileSize means
// the size was not reported.
type FileDescriptor struct {
	Filename string `json:"filename" yaml:"filename"`
	FileSize *int64 `json:"fileSize" yaml:"fileSize"`
	MIMEType string `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
	Hash     string `json:"hash,omitempty" yaml:"hash,omitempty"`
}

// Size returns the declared size, or zero if none was declared.
func (f FileDescriptor) Size() int64 {
	if f.FileSize == nil {
		return 0
	}
	return *f.FileSize
}

// BatchDescriptor is the read-only description of a remote batch returned
// by a search.
type BatchDescriptor struct {
	BatchID     string           `json:"batchId" yaml:"batchId"`
	PublishedAt time.Time        `json:"batchPublishedDate" yaml:"batchPublishedDate"`
	Attributes  Attributes       `json:"attributes" yaml:"attributes"`
	Files       []FileDescriptor `json:"files" yaml:"files"`
}

// SearchResponse is returned by GET /batch.
type SearchResponse struct {
	Count   int               `json:"count"`
	Total   int               `json:"total"`
	Entries []BatchDescriptor `json:"entries"`
}

// SweepResponse is returned by POST /admin/sweep.
type SweepResponse struct {
	Removed []string `json:"removed"`
}
