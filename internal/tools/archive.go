package tools

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	dvderrors "github.com/dvdmaker/dvdmaker/internal/errors"
)

// ExtractArchive extracts a zip, tar.gz or tar.xz archive into the
// given directory. Entries that would escape the directory are
// rejected.
func ExtractArchive(archivePath, extractTo string) error {
	lower := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return extractZip(archivePath, extractTo)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return extractTarGz(archivePath, extractTo)
	case strings.HasSuffix(lower, ".tar.xz"):
		return extractTarXz(archivePath, extractTo)
	case strings.HasSuffix(lower, ".tar"):
		return extractTarStream(archivePath, extractTo, func(r io.Reader) (io.Reader, error) {
			return r, nil
		})
	default:
		return fmt.Errorf("%w: unsupported archive format: %s",
			dvderrors.ErrInvalidArchive, filepath.Ext(archivePath))
	}
}

func extractZip(archivePath, extractTo string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %v", dvderrors.ErrInvalidArchive, archivePath, err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		target, err := safeJoin(extractTo, file.Name)
		if err != nil {
			return err
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		src, err := file.Open()
		if err != nil {
			return fmt.Errorf("%w: failed to read %s: %v", dvderrors.ErrInvalidArchive, file.Name, err)
		}
		if err := writeEntry(target, src, file.Mode()); err != nil {
			src.Close()
			return err
		}
		src.Close()
	}
	return nil
}

func extractTarGz(archivePath, extractTo string) error {
	return extractTarStream(archivePath, extractTo, func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	})
}

func extractTarXz(archivePath, extractTo string) error {
	return extractTarStream(archivePath, extractTo, func(r io.Reader) (io.Reader, error) {
		return xz.NewReader(r)
	})
}

func extractTarStream(archivePath, extractTo string, decompress func(io.Reader) (io.Reader, error)) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %v", dvderrors.ErrInvalidArchive, archivePath, err)
	}
	defer f.Close()

	stream, err := decompress(f)
	if err != nil {
		return fmt.Errorf("%w: failed to decompress %s: %v", dvderrors.ErrInvalidArchive, archivePath, err)
	}

	reader := tar.NewReader(stream)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: failed to extract %s: %v", dvderrors.ErrInvalidArchive, archivePath, err)
		}

		target, err := safeJoin(extractTo, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := writeEntry(target, reader, os.FileMode(header.Mode)); err != nil {
				return err
			}
		default:
			// Symlinks and special files in tool archives are skipped.
		}
	}
}

func writeEntry(target string, src io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// safeJoin joins an archive entry name onto the extraction root,
// rejecting names that traverse outside it.
func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, name)
	if !strings.HasPrefix(target, filepath.Clean(root)+string(os.PathSeparator)) && target != filepath.Clean(root) {
		return "", fmt.Errorf("%w: archive entry escapes extraction directory: %s",
			dvderrors.ErrInvalidArchive, name)
	}
	return target, nil
}
