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

package maggutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spatialmodel/magg/cloud"
)

// readInput reads the file at location, which may be a local path, an
// http(s) URL, or a blob URL. Environment variables in location are
// expanded.
func readInput(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, fmt.Errorf("magg: no input location specified")
	}
	p, err := maybeDownload(ctx, os.ExpandEnv(location))
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("magg: reading input: %v", err)
	}
	return b, nil
}

// maybeDownload checks if the input is an existing file locally.
// If not, it checks if the file is a URL or a blob.
// If it is, it downloads the file and returns the path to the
// downloaded file.
func maybeDownload(ctx context.Context, location string) (string, error) {
	// Check if local file exists. If it does, return the given path.
	if _, err := os.Stat(location); err == nil {
		return location, nil
	}
	switch {
	case strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://"):
		return downloadHTTP(ctx, location)
	case cloud.IsBlob(location):
		return downloadBlob(ctx, location)
	}
	return location, nil
}

// downloadHTTP downloads a file from the specified URL and returns
// the path to the downloaded file.
func downloadHTTP(ctx context.Context, location string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return "", fmt.Errorf("magg: downloading %s: %v", location, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("magg: downloading %s: %v", location, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("magg: downloading %s: %s", location, resp.Status)
	}
	w, err := tempFile(path.Base(req.URL.Path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		w.Close()
		return "", fmt.Errorf("magg: downloading %s: %v", location, err)
	}
	return w.Name(), w.Close()
}

// downloadBlob copies a blob to a local temporary file and returns
// the path to the file.
func downloadBlob(ctx context.Context, location string) (string, error) {
	b, err := cloud.ReadURL(ctx, location)
	if err != nil {
		return "", err
	}
	w, err := tempFile(path.Base(location))
	if err != nil {
		return "", err
	}
	if _, err := w.Write(b); err != nil {
		w.Close()
		return "", fmt.Errorf("magg: saving %s: %v", location, err)
	}
	return w.Name(), w.Close()
}

// tempFile creates a file named base in a new temporary directory.
func tempFile(base string) (*os.File, error) {
	dir, err := os.MkdirTemp("", "magg")
	if err != nil {
		return nil, fmt.Errorf("magg: creating temporary download directory: %v", err)
	}
	if base == "" || base == "." || base == "/" {
		base = "download"
	}
	w, err := os.Create(filepath.Join(dir, base))
	if err != nil {
		return nil, fmt.Errorf("magg: creating file for download: %v", err)
	}
	return w, nil
}
