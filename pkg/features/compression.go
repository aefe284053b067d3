package features

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// CompressionType defines the compression algorithm used for rotated log files.
type CompressionType int

const (
	// CompressionNone disables compression
	CompressionNone CompressionType = iota
	// CompressionGzip enables gzip compression
	CompressionGzip
)

// String returns the string representation of a compression type
func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	default:
		return "unknown"
	}
}

// Extension returns the suffix added to compressed files.
func (ct CompressionType) Extension() string {
	if ct == CompressionGzip {
		return ".gz"
	}
	return ""
}

// ParseCompressionType parses a string into a CompressionType
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "gz", "gzip":
		return CompressionGzip, nil
	default:
		return CompressionNone, types.ConfigError("compression", "unsupported compression type: %s", s)
	}
}

// CompressFile compresses path in place, returning the new file name. The original is
// removed only once the compressed copy is fully written.
func CompressFile(path string, ct CompressionType) (compressed string, err error) {
	switch ct {
	case CompressionNone:
		return path, nil
	case CompressionGzip:
	default:
		return "", errors.Errorf("unsupported compression type: %v", ct)
	}

	cleanPath := filepath.Clean(path)
	compressedPath := cleanPath + ct.Extension()

	src, err := os.Open(cleanPath)
	if err != nil {
		return "", errors.Wrap(err, "opening source file for compression")
	}
	defer src.Close()

	dst, err := os.OpenFile(compressedPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644) // #nosec G302 - compressed log files
	if err != nil {
		return "", errors.Wrap(err, "creating compressed file")
	}
	defer func() {
		if err != nil {
			_ = dst.Close()
			_ = os.Remove(compressedPath)
		}
	}()

	gw := gzip.NewWriter(dst)
	gw.Name = filepath.Base(cleanPath)
	if _, err = io.Copy(gw, src); err != nil {
		return "", errors.Wrap(err, "compressing file")
	}
	if err = gw.Close(); err != nil {
		return "", errors.Wrap(err, "closing gzip writer")
	}
	if err = dst.Close(); err != nil {
		return "", errors.Wrap(err, "closing compressed file")
	}

	if err := os.Remove(cleanPath); err != nil {
		_ = os.Remove(compressedPath)
		return "", errors.Wrap(err, "removing original file after compression")
	}
	return compressedPath, nil
}
