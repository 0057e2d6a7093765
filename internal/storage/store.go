package storage

import "io"

// FileStore holds firmware images. Save returns the storage path, byte
// count and hex sha256 of the written file so callers can verify uploads.
type FileStore interface {
	Save(name string, reader io.Reader) (path string, size int64, checksum string, err error)
	Open(path string) (io.ReadCloser, error)
	Delete(path string) error
}
