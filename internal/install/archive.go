package install

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/bundle-updater/internal/errs"
)

// extractTarGz unpacks a gzip-compressed tar into dest. Entry paths
// are cleaned and confined to dest; anything escaping it is rejected.
func extractTarGz(artifact []byte, dest string) error {
	gz, err := gzip.NewReader(bytes.NewReader(artifact))
	if err != nil {
		return errs.Wrap(errs.KindExtract, "open gzip stream", err)
	}

	defer func() {
		_ = gz.Close()
	}()

	reader := tar.NewReader(gz)

	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return errs.Wrap(errs.KindExtract, "read tar entry", err)
		}

		target, err := confine(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, 0o755); err != nil {
				return errs.Wrap(errs.KindIo, "create directory "+header.Name, err)
			}
		case tar.TypeReg:
			if err = writeFileFrom(reader, target, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err = os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errs.Wrap(errs.KindIo, "create directory for "+header.Name, err)
			}

			if err = os.Symlink(header.Linkname, target); err != nil {
				return errs.Wrap(errs.KindIo, "create symlink "+header.Name, err)
			}
		default:
			// Bundles carry only files, dirs and symlinks.
			return errs.Newf(errs.KindExtract, "unsupported tar entry type %d for %s", header.Typeflag, header.Name)
		}
	}
}

// extractTarGzSingle unpacks a gzip-tar expected to contain exactly
// one regular file whose name has the given suffix and returns its
// content.
func extractTarGzSingle(artifact []byte, suffix string) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(artifact))
	if err != nil {
		return nil, errs.Wrap(errs.KindExtract, "open gzip stream", err)
	}

	defer func() {
		_ = gz.Close()
	}()

	reader := tar.NewReader(gz)

	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil, errs.Newf(errs.KindExtract, "archive contains no %s file", suffix)
		}

		if err != nil {
			return nil, errs.Wrap(errs.KindExtract, "read tar entry", err)
		}

		if header.Typeflag != tar.TypeReg || !strings.HasSuffix(header.Name, suffix) {
			continue
		}

		content, err := io.ReadAll(reader)
		if err != nil {
			return nil, errs.Wrap(errs.KindExtract, "read "+header.Name, err)
		}

		return content, nil
	}
}

// extractZipSingle unpacks a zip expected to contain exactly one
// entry whose name has the given suffix and returns its content.
func extractZipSingle(artifact []byte, suffix string) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(artifact), int64(len(artifact)))
	if err != nil {
		return nil, errs.Wrap(errs.KindExtract, "open zip archive", err)
	}

	for _, file := range reader.File {
		if file.FileInfo().IsDir() || !strings.HasSuffix(file.Name, suffix) {
			continue
		}

		entry, err := file.Open()
		if err != nil {
			return nil, errs.Wrap(errs.KindExtract, "open "+file.Name, err)
		}

		content, err := io.ReadAll(entry)
		_ = entry.Close()

		if err != nil {
			return nil, errs.Wrap(errs.KindExtract, "read "+file.Name, err)
		}

		return content, nil
	}

	return nil, errs.Newf(errs.KindExtract, "archive contains no %s file", suffix)
}

// writeTempFile lands content in the OS temp directory under the
// given name pattern and returns its path. The handle is closed
// before returning so the file can be renamed or spawned.
func writeTempFile(pattern string, content []byte) (string, error) {
	file, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", errs.Wrap(errs.KindIo, "create temp file", err)
	}

	if _, err = file.Write(content); err != nil {
		_ = file.Close()

		return "", errs.Wrap(errs.KindIo, "write temp file", err)
	}

	if err = file.Close(); err != nil {
		return "", errs.Wrap(errs.KindIo, "close temp file", err)
	}

	return file.Name(), nil
}

// writeFileFrom streams a tar entry to disk with its mode.
func writeFileFrom(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errs.Wrap(errs.KindIo, "create directory for "+target, err)
	}

	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return errs.Wrap(errs.KindIo, "create "+target, err)
	}

	if _, err = io.Copy(file, r); err != nil {
		_ = file.Close()

		return errs.Wrap(errs.KindIo, "write "+target, err)
	}

	if err = file.Close(); err != nil {
		return errs.Wrap(errs.KindIo, "close "+target, err)
	}

	return nil
}

// confine joins an archive entry name onto dest, rejecting entries
// that would escape it.
func confine(dest, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." ||
		strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", errs.Newf(errs.KindExtract, "archive entry %s escapes the extraction directory", name)
	}

	return filepath.Join(dest, cleaned), nil
}
