// icucohort: ICU Cohort Selection and Outcome Modeling
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the part of the S3 client the store uses.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps objects in a bucket. Transfers are staged through temporary
// files, which are removed when the transfer ends, whatever its outcome.
type S3Store struct {
	client s3API
	bucket string
	tmpDir string
}

// NewS3Store creates a store for bucket with the default AWS configuration
// chain, optionally overriding the region.
func NewS3Store(ctx context.Context, bucket, region string) (*S3Store, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return newS3Store(s3.NewFromConfig(cfg), bucket, ""), nil
}

func newS3Store(client s3API, bucket, tmpDir string) *S3Store {
	return &S3Store{client: client, bucket: bucket, tmpDir: tmpDir}
}

func removeTemp(f *os.File, err *error) {
	cerr := f.Close()
	if rerr := os.Remove(f.Name()); rerr != nil && *err == nil {
		*err = rerr
	}
	if cerr != nil && !errors.Is(cerr, os.ErrClosed) && *err == nil {
		*err = cerr
	}
}

// Get downloads an object into a temporary file and returns its content.
func (s *S3Store) Get(ctx context.Context, key string) (data []byte, err error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: s3://%v/%v", ErrNotFound, s.bucket, key)
		}
		return nil, fmt.Errorf("getting s3://%v/%v: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	f, err := os.CreateTemp(s.tmpDir, "blob-get-*")
	if err != nil {
		return nil, err
	}
	defer removeTemp(f, &err)
	if _, err = io.Copy(f, out.Body); err != nil {
		return nil, fmt.Errorf("downloading s3://%v/%v: %w", s.bucket, key, err)
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

// Put writes data to a temporary file and uploads it.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) (err error) {
	f, err := os.CreateTemp(s.tmpDir, "blob-put-*")
	if err != nil {
		return err
	}
	defer removeTemp(f, &err)
	if _, err = io.Copy(f, bytes.NewReader(data)); err != nil {
		return err
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("putting s3://%v/%v: %w", s.bucket, key, err)
	}
	return nil
}
