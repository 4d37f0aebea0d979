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

package objectstorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	aliyunoss "github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/go-http-utils/headers"
)

type oss struct {
	client *aliyunoss.Client
}

func newOSS(o Options, client *http.Client) (ObjectStorage, error) {
	c, err := aliyunoss.New(o.Endpoint, o.AccessKey, o.SecretKey, aliyunoss.Region(o.Region), aliyunoss.HTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create oss client: %w", err)
	}

	return &oss{client: c}, nil
}

// The oss sdk takes no context, ctx is accepted to satisfy ObjectStorage.

func (o *oss) IsBucketExist(_ context.Context, bucketName string) (bool, error) {
	return o.client.IsBucketExist(bucketName)
}

func (o *oss) CreateBucket(_ context.Context, bucketName string) error {
	return o.client.CreateBucket(bucketName)
}

func (o *oss) GetObjectMetadata(_ context.Context, bucketName, objectKey string) (*ObjectMetadata, bool, error) {
	bucket, err := o.client.Bucket(bucketName)
	if err != nil {
		return nil, false, err
	}

	h, err := bucket.GetObjectDetailedMeta(objectKey)
	var serr aliyunoss.ServiceError
	if errors.As(err, &serr) && serr.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	size, err := strconv.ParseInt(h.Get(headers.ContentLength), 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s of %s: %w", headers.ContentLength, objectKey, err)
	}

	return &ObjectMetadata{
		Key:           objectKey,
		ContentLength: size,
		ContentType:   h.Get(headers.ContentType),
		ETag:          h.Get(headers.ETag),
		Digest:        h.Get(aliyunoss.HTTPHeaderOssMetaPrefix + MetaDigest),
	}, true, nil
}

func (o *oss) CreateObject(_ context.Context, bucketName, objectKey, digest string, reader io.Reader) error {
	bucket, err := o.client.Bucket(bucketName)
	if err != nil {
		return err
	}

	return bucket.PutObject(objectKey, reader, aliyunoss.Meta(MetaDigest, digest))
}

func (o *oss) DeleteObject(_ context.Context, bucketName, objectKey string) error {
	bucket, err := o.client.Bucket(bucketName)
	if err != nil {
		return err
	}

	return bucket.DeleteObject(objectKey)
}
