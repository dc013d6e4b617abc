package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP copies the archive members whose base name starts with prefix
// (case-insensitive, empty keeps everything) into destDir. Directory
// structure inside the archive is dropped, which suits the TRI and INSEE
// archives where the useful files sit one or two folders deep.
func ExtractZIP(zipPath, prefix, destDir string) ([]string, error) {
	prefix = strings.ToLower(prefix)
	var paths []string
	err := walkZIP(zipPath, func(f *zip.File) (bool, error) {
		base := filepath.Base(f.Name)
		if !strings.HasPrefix(strings.ToLower(base), prefix) {
			return true, nil
		}
		p, err := copyZIPMember(f, base, destDir)
		if err != nil {
			return false, err
		}
		paths = append(paths, p)
		return true, nil
	})
	return paths, err
}

// ExtractZIPFile writes the member named exactly fileName under destDir,
// keeping its relative path.
func ExtractZIPFile(zipPath, fileName, destDir string) (string, error) {
	var path string
	err := walkZIP(zipPath, func(f *zip.File) (bool, error) {
		if f.Name != fileName {
			return true, nil
		}
		p, err := copyZIPMember(f, f.Name, destDir)
		path = p
		return false, err
	})
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", eris.Errorf("zip: %q not in %s", fileName, filepath.Base(zipPath))
	}
	return path, nil
}

// walkZIP calls visit for each regular member until visit returns false or
// an error.
func walkZIP(zipPath string, visit func(*zip.File) (bool, error)) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrapf(err, "zip: open %s", zipPath)
	}
	defer zr.Close() //nolint:errcheck

	for _, f := range zr.File {
		if f.Mode().IsDir() {
			continue
		}
		more, err := visit(f)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return nil
}

func copyZIPMember(f *zip.File, rel, destDir string) (string, error) {
	root := filepath.Clean(destDir)
	target := filepath.Join(root, rel)
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: member %q escapes %s", f.Name, destDir)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", eris.Wrapf(err, "zip: mkdir for %s", rel)
	}

	src, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(err, "zip: read member %s", f.Name)
	}
	defer src.Close() //nolint:errcheck

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", eris.Wrapf(err, "zip: create %s", target)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close() //nolint:errcheck,gosec
		return "", eris.Wrapf(err, "zip: copy %s", f.Name)
	}
	if err := dst.Close(); err != nil {
		return "", eris.Wrapf(err, "zip: close %s", target)
	}
	return target, nil
}
