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
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
)

type s3 struct {
	client *awss3.S3
}

// newS3 addresses buckets by path so that minio and other self-hosted
// endpoints work without wildcard DNS.
func newS3(o Options, client *http.Client) (ObjectStorage, error) {
	sess, err := session.NewSession(aws.NewConfig().
		WithCredentials(credentials.NewStaticCredentials(o.AccessKey, o.SecretKey, "")).
		WithRegion(o.Region).
		WithEndpoint(o.Endpoint).
		WithS3ForcePathStyle(true).
		WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create s3 session: %w", err)
	}

	return &s3{client: awss3.New(sess)}, nil
}

func (s *s3) IsBucketExist(ctx context.Context, bucketName string) (bool, error) {
	_, err := s.client.HeadBucketWithContext(ctx, &awss3.HeadBucketInput{Bucket: aws.String(bucketName)})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

func (s *s3) CreateBucket(ctx context.Context, bucketName string) error {
	_, err := s.client.CreateBucketWithContext(ctx, &awss3.CreateBucketInput{Bucket: aws.String(bucketName)})
	return err
}

func (s *s3) GetObjectMetadata(ctx context.Context, bucketName, objectKey string) (*ObjectMetadata, bool, error) {
	out, err := s.client.HeadObjectWithContext(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(objectKey),
	})
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return &ObjectMetadata{
		Key:           objectKey,
		ContentLength: aws.Int64Value(out.ContentLength),
		ContentType:   aws.StringValue(out.ContentType),
		ETag:          aws.StringValue(out.ETag),
		Digest:        userMetadata(out.Metadata, MetaDigest),
	}, true, nil
}

func (s *s3) CreateObject(ctx context.Context, bucketName, objectKey, digest string, reader io.Reader) error {
	_, err := s.client.PutObjectWithContext(ctx, &awss3.PutObjectInput{
		Bucket:   aws.String(bucketName),
		Key:      aws.String(objectKey),
		Body:     aws.ReadSeekCloser(reader),
		Metadata: map[string]*string{MetaDigest: aws.String(digest)},
	})
	return err
}

func (s *s3) DeleteObject(ctx context.Context, bucketName, objectKey string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(objectKey),
	})
	return err
}

// userMetadata ignores case, the sdk canonicalizes the keys it returns.
func userMetadata(meta map[string]*string, key string) string {
	for k, v := range meta {
		if strings.EqualFold(k, key) {
			return aws.StringValue(v)
		}
	}

	return ""
}

// isNotFound covers HEAD responses, which carry a status but no error code.
func isNotFound(err error) bool {
	var rerr awserr.RequestFailure
	if errors.As(err, &rerr) && rerr.StatusCode() == http.StatusNotFound {
		return true
	}

	var aerr awserr.Error
	return errors.As(err, &aerr) && (aerr.Code() == "NotFound" || aerr.Code() == awss3.ErrCodeNoSuchBucket)
}
