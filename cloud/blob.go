/*
Copyright © 2026 the magg authors.
This file is part of magg.

magg is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

magg is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with magg.  If not, see <http://www.gnu.org/licenses/>.
*/

package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"gocloud.dev/blob"
)

// ReadBlob reads the given blob from the given bucket.
func ReadBlob(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, error) {
	var b bytes.Buffer
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("cloud: reading blob key %s: %v", key, err)
	}
	defer r.Close()
	_, err = io.Copy(&b, r)
	if err != nil {
		return nil, fmt.Errorf("cloud: reading blob key %s: %v", key, err)
	}
	return b.Bytes(), nil
}

// WriteBlob writes the given data to the given bucket.
func WriteBlob(ctx context.Context, bucket *blob.Bucket, key string, data []byte) error {
	return copyToBlob(ctx, bucket, key, bytes.NewReader(data))
}

func copyToBlob(ctx context.Context, bucket *blob.Bucket, key string, r io.Reader) error {
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("cloud: creating writer for blob %s: %v", key, err)
	}
	if _, err = io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cloud: copying blob %s: %v", key, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("cloud: writing blob %s: %v", key, err)
	}
	return nil
}

// ReadURL reads the blob at the given URL.
func ReadURL(ctx context.Context, location string) ([]byte, error) {
	bucketName, key, err := SplitURL(location)
	if err != nil {
		return nil, err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return nil, err
	}
	defer bucket.Close()
	return ReadBlob(ctx, bucket, key)
}

// WriteURL writes data to the blob at the given URL.
func WriteURL(ctx context.Context, location string, data []byte) error {
	bucketName, key, err := SplitURL(location)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return err
	}
	defer bucket.Close()
	return WriteBlob(ctx, bucket, key, data)
}

// UploadFile copies the local file at path to the given key.
func UploadFile(ctx context.Context, bucket *blob.Bucket, key, path string) error {
	r, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cloud: opening file '%s' for upload: %v", path, err)
	}
	defer r.Close()
	return copyToBlob(ctx, bucket, key, r)
}

// ListKeys returns the keys of all blobs under the given prefix.
func ListKeys(ctx context.Context, bucket *blob.Bucket, prefix string) ([]string, error) {
	var keys []string
	iter := bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cloud: listing blobs with prefix %s: %v", prefix, err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// DeletePrefix deletes all blobs under the given prefix.
func DeletePrefix(ctx context.Context, bucket *blob.Bucket, prefix string) error {
	keys, err := ListKeys(ctx, bucket, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err = bucket.Delete(ctx, key); err != nil {
			return fmt.Errorf("cloud: deleting blob %s: %v", key, err)
		}
	}
	return nil
}
