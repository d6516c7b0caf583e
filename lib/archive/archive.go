// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive unpacks proxy source tarballs into a prepared
// sources directory.
//
// The outer compression is chosen from the file extension:
//
//	.tar              uncompressed
//	.tar.gz, .tgz     gzip  (klauspost/compress/gzip)
//	.tar.zst          zstd  (klauspost/compress/zstd)
//	.tar.lz4          lz4 frame (pierrec/lz4/v4)
//
// [Extract] materializes regular files, directories, symlinks and hard
// links. Any entry whose path, or whose link target, would land
// outside the destination is rejected with [ErrUnsafePath] before
// anything is written for it.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	// ErrUnsafePath is returned for entries that would escape the
	// extraction directory.
	ErrUnsafePath = errors.New("archive: entry escapes destination")

	// ErrUnsupportedFormat is returned for file extensions the
	// package does not recognize.
	ErrUnsupportedFormat = errors.New("archive: unsupported format")
)

// Format identifies an archive's outer compression.
type Format int

const (
	FormatTar Format = iota
	FormatTarGzip
	FormatTarZstd
	FormatTarLZ4
)

func (f Format) String() string {
	switch f {
	case FormatTar:
		return "tar"
	case FormatTarGzip:
		return "tar.gz"
	case FormatTarZstd:
		return "tar.zst"
	case FormatTarLZ4:
		return "tar.lz4"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// FormatFromPath picks the format from path's extension.
func FormatFromPath(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGzip, nil
	case strings.HasSuffix(name, ".tar.zst"):
		return FormatTarZstd, nil
	case strings.HasSuffix(name, ".tar.lz4"):
		return FormatTarLZ4, nil
	case strings.HasSuffix(name, ".tar"):
		return FormatTar, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Extract unpacks archivePath into destination, creating destination
// if needed. Existing files at entry paths are replaced.
func Extract(archivePath, destination string) error {
	format, err := FormatFromPath(archivePath)
	if err != nil {
		return err
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	stream, closeStream, err := decompress(file, format)
	if err != nil {
		return fmt.Errorf("reading %s header of %s: %w", format, archivePath, err)
	}
	defer closeStream()

	if err := os.MkdirAll(destination, 0o755); err != nil {
		return fmt.Errorf("creating extraction directory: %w", err)
	}
	root, err := filepath.Abs(destination)
	if err != nil {
		return fmt.Errorf("resolving extraction directory: %w", err)
	}

	reader := tar.NewReader(stream)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, header.Name)
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", archivePath, err)
		}
		if err := extractEntry(root, header, reader); err != nil {
			return err
		}
	}
}

func decompress(reader io.Reader, format Format) (io.Reader, func(), error) {
	switch format {
	case FormatTar:
		return reader, func() {}, nil
	case FormatTarGzip:
		gzipReader, err := gzip.NewReader(reader)
		if err != nil {
			return nil, nil, err
		}
		return gzipReader, func() { gzipReader.Close() }, nil
	case FormatTarZstd:
		decoder, err := zstd.NewReader(reader)
		if err != nil {
			return nil, nil, err
		}
		return decoder, decoder.Close, nil
	case FormatTarLZ4:
		return lz4.NewReader(reader), func() {}, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// inside reports whether path is root or lies beneath it. Both must be
// clean absolute paths.
func inside(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

func extractEntry(root string, header *tar.Header, reader io.Reader) error {
	if filepath.IsAbs(header.Name) {
		return fmt.Errorf("%w: absolute path %s", ErrUnsafePath, header.Name)
	}
	target := filepath.Join(root, header.Name)
	if !inside(root, target) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, header.Name)
	}

	switch header.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", header.Name, err)
		}
		return nil

	case tar.TypeReg:
		if err := prepareParent(target); err != nil {
			return err
		}
		return writeRegular(target, header, reader)

	case tar.TypeSymlink:
		resolved := filepath.Join(filepath.Dir(target), header.Linkname)
		if filepath.IsAbs(header.Linkname) || !inside(root, resolved) {
			return fmt.Errorf("%w: symlink %s -> %s", ErrUnsafePath, header.Name, header.Linkname)
		}
		if err := prepareParent(target); err != nil {
			return err
		}
		if err := os.Symlink(header.Linkname, target); err != nil {
			return fmt.Errorf("creating symlink %s: %w", header.Name, err)
		}
		return nil

	case tar.TypeLink:
		source := filepath.Join(root, header.Linkname)
		if filepath.IsAbs(header.Linkname) || !inside(root, source) {
			return fmt.Errorf("%w: hard link %s -> %s", ErrUnsafePath, header.Name, header.Linkname)
		}
		if err := prepareParent(target); err != nil {
			return err
		}
		if err := os.Link(source, target); err != nil {
			return fmt.Errorf("creating hard link %s: %w", header.Name, err)
		}
		return nil
	}

	// Device nodes, FIFOs and PAX metadata records carry nothing a
	// build needs.
	return nil
}

// prepareParent creates the entry's parent directory and removes any
// existing file at the entry path.
func prepareParent(target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", target, err)
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replacing %s: %w", target, err)
	}
	return nil
}

func writeRegular(target string, header *tar.Header, reader io.Reader) error {
	mode := header.FileInfo().Mode().Perm()
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", header.Name, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", header.Name, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", header.Name, err)
	}
	return nil
}
