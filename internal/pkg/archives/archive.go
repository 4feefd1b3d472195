// Package archives implements extraction of submission archives.
package archives

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

var (
	// ErrUnsafePath means that archive entry points outside of target.
	ErrUnsafePath = errors.New("unsafe path in archive")
	// ErrUnsupportedFormat means that archive format is not supported.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
)

// Extract extracts archive into specified path.
//
// Archive format is detected by extension of source.
func Extract(source, target string) error {
	name := strings.ToLower(source)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return ExtractZip(source, target)
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return ExtractTarGz(source, target)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(source))
	}
}

// IsSupported returns true if archive with specified name can be extracted.
func IsSupported(name string) bool {
	return Ext(name) != ""
}

// Ext returns canonical extension of supported archive or empty string.
func Ext(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return ".zip"
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return ".tar.gz"
	default:
		return ""
	}
}

// ExtractTarGz extracts tar.gz archive into specified path.
func ExtractTarGz(source, target string) error {
	file, err := os.Open(source)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	reader, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()
	if err := os.MkdirAll(target, os.ModePerm); err != nil {
		return err
	}
	archive := tar.NewReader(reader)
	for {
		header, err := archive.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		path, err := safeJoin(target, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, os.ModePerm); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(path, os.FileMode(header.Mode).Perm(), archive); err != nil {
				return err
			}
		case tar.TypeSymlink, tar.TypeLink:
			return fmt.Errorf("%w: link %q", ErrUnsafePath, header.Name)
		}
	}
}

// ExtractZip extracts zip archive into specified path.
func ExtractZip(source, target string) error {
	archive, err := zip.OpenReader(source)
	if err != nil {
		return err
	}
	defer func() { _ = archive.Close() }()
	if err := os.MkdirAll(target, os.ModePerm); err != nil {
		return err
	}
	for _, file := range archive.File {
		path, err := safeJoin(target, file.Name)
		if err != nil {
			return err
		}
		mode := file.Mode()
		if mode&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: link %q", ErrUnsafePath, file.Name)
		}
		if mode.IsDir() {
			if err := os.MkdirAll(path, os.ModePerm); err != nil {
				return err
			}
			continue
		}
		if err := func() error {
			input, err := file.Open()
			if err != nil {
				return err
			}
			defer func() { _ = input.Close() }()
			return writeFile(path, mode.Perm(), input)
		}(); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, perm os.FileMode, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0644
	}
	output, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() { _ = output.Close() }()
	_, err = io.Copy(output, r)
	return err
}

func safeJoin(target, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	path := filepath.Join(target, filepath.FromSlash(name))
	rel, err := filepath.Rel(target, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return path, nil
}
