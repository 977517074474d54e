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
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"gocloud.dev/blob/fileblob"
)

func TestSplitURL(t *testing.T) {
	tests := []struct {
		in, bucket, key string
	}{
		{"s3://granules/atl06/2020/a.csv", "s3://granules", "atl06/2020/a.csv"},
		{"gs://out", "gs://out", ""},
		{"file:///tmp/x/y.json", "file:///tmp", "x/y.json"},
		{"file:///y.json", "file://", "y.json"},
		{"file://testdata/y.json", "file://testdata", "y.json"},
	}
	for _, test := range tests {
		bucket, key, err := SplitURL(test.in)
		if err != nil {
			t.Fatal(err)
		}
		if bucket != test.bucket || key != test.key {
			t.Errorf("%s: have (%s, %s), want (%s, %s)", test.in, bucket, key, test.bucket, test.key)
		}
	}
	if _, _, err := SplitURL("/tmp/x"); err == nil {
		t.Error("expected an error for a local path")
	}
	if _, err := OpenBucket(context.Background(), "ftp://x"); err == nil {
		t.Error("expected an error for an unknown provider")
	}
}

func TestJoinKey(t *testing.T) {
	if have := JoinKey("", "/runs/", "abc", "shard.json"); have != "runs/abc/shard.json" {
		t.Errorf("have %s", have)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	bucket, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer bucket.Close()
	const prefix = "out"

	want := []byte("lat,lon,value\n1,2,3\n")
	if err := WriteBlob(ctx, bucket, JoinKey(prefix, "a.csv"), want); err != nil {
		t.Fatal(err)
	}
	have, err := ReadURL(ctx, "file://"+filepath.Join(dir, "out", "a.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("have %q, want %q", have, want)
	}

	local := filepath.Join(dir, "local.txt")
	if err := os.WriteFile(local, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := UploadFile(ctx, bucket, JoinKey(prefix, "b.txt"), local); err != nil {
		t.Fatal(err)
	}
	if err := WriteURL(ctx, "file://"+filepath.Join(dir, "out", "c", "d.json"), []byte("{}")); err != nil {
		t.Fatal(err)
	}

	keys, err := ListKeys(ctx, bucket, prefix+"/")
	if err != nil {
		t.Fatal(err)
	}
	wantKeys := []string{prefix + "/a.csv", prefix + "/b.txt", prefix + "/c/d.json"}
	if !reflect.DeepEqual(keys, wantKeys) {
		t.Errorf("keys: have %v, want %v", keys, wantKeys)
	}

	if err := DeletePrefix(ctx, bucket, prefix+"/"); err != nil {
		t.Fatal(err)
	}
	if keys, _ = ListKeys(ctx, bucket, prefix+"/"); len(keys) != 0 {
		t.Errorf("keys remain after delete: %v", keys)
	}
}

// Blobs written through an absolute file URL must be listable through
// the bucket and prefix that SplitURL returns for their directory.
func TestListAbsoluteFileURL(t *testing.T) {
	ctx := context.Background()
	dir, err := filepath.Abs(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	base := "file://" + filepath.ToSlash(dir)
	if err := WriteURL(ctx, base+"/run/a.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	bucketName, prefix, err := SplitURL(base)
	if err != nil {
		t.Fatal(err)
	}
	if bucketName == "file://" {
		t.Fatalf("bucket for %s is rooted at the filesystem root", base)
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		t.Fatal(err)
	}
	defer bucket.Close()
	keys, err := ListKeys(ctx, bucket, prefix+"/")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{JoinKey(prefix, "run", "a.json")}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("keys: have %v, want %v", keys, want)
	}

	if err := DeletePrefix(ctx, bucket, prefix+"/"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "run", "a.json")); !os.IsNotExist(err) {
		t.Errorf("blob was not deleted: %v", err)
	}

	local, err := OpenBucket(ctx, base)
	if err != nil {
		t.Fatal(err)
	}
	defer local.Close()
	if err := WriteBlob(ctx, local, "b.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if keys, _ := ListKeys(ctx, local, ""); !reflect.DeepEqual(keys, []string{"b.json"}) {
		t.Errorf("bucket opened at %s lists %v", base, keys)
	}
}
