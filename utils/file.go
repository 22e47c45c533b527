package utils

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DiskStore writes uploads below Root and serves them under URLPrefix.
type DiskStore struct {
	Root      string
	URLPrefix string
}

func NewDiskStore(root, urlPrefix string) (*DiskStore, error) {
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, err
	}
	return &DiskStore{Root: root, URLPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// Put saves body at Root/key. Keys that would escape Root are rejected.
func (d *DiskStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	dest := filepath.Join(d.Root, filepath.FromSlash(key))
	if !strings.HasPrefix(dest, filepath.Clean(d.Root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path: %s", key)
	}
	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return "", err
	}

	dst, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, body); err != nil {
		return "", err
	}
	return path.Join(d.URLPrefix, key), nil
}
