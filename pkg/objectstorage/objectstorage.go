/*
 *     Copyright 2023 The Dragonfly Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

//go:generate mockgen -package mocks -source objectstorage.go -destination ./mocks/objectstorage_mock.go

package objectstorage

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Supported backends.
const (
	BackendS3  = "s3"
	BackendOSS = "oss"
)

// MetaDigest is the user metadata key holding the checkpoint digest.
const MetaDigest = "digest"

// DefaultTimeout bounds a whole request including the body transfer.
const DefaultTimeout = 10 * time.Minute

// Backends lists the names accepted by New.
var Backends = []string{BackendS3, BackendOSS}

// ObjectMetadata is what a HEAD request reports about a stored checkpoint.
type ObjectMetadata struct {
	Key           string
	ContentLength int64
	ContentType   string
	ETag          string

	// Digest is read from MetaDigest, empty when the object carries none.
	Digest string
}

// ObjectStorage is the subset of bucket operations used to publish checkpoints.
type ObjectStorage interface {
	IsBucketExist(ctx context.Context, bucketName string) (bool, error)
	CreateBucket(ctx context.Context, bucketName string) error

	// GetObjectMetadata reports false without an error when the object is missing.
	GetObjectMetadata(ctx context.Context, bucketName, objectKey string) (*ObjectMetadata, bool, error)

	// CreateObject stores the reader under objectKey with digest as user metadata.
	CreateObject(ctx context.Context, bucketName, objectKey, digest string, reader io.Reader) error
	DeleteObject(ctx context.Context, bucketName, objectKey string) error
}

// Options locates and authenticates against a backend.
type Options struct {
	Backend   string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
}

// New returns the backend named by o.Backend.
func New(o Options) (ObjectStorage, error) {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	client := newHTTPClient(o.Timeout)
	switch o.Backend {
	case BackendS3:
		return newS3(o, client)
	case BackendOSS:
		return newOSS(o, client)
	default:
		return nil, fmt.Errorf("unsupported object storage backend %q", o.Backend)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 15 * time.Second, KeepAlive: time.Minute}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   15 * time.Second,
			ResponseHeaderTimeout: time.Minute,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   4,
			// Checkpoints are float32 blobs and barely compress.
			DisableCompression: true,
		},
	}
}
