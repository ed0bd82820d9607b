package assets

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteClientZip bundles an unpacked client distribution with the
// generated connection file into a zip at outputPath. Every file under
// templateDir is copied with its relative path; the connection file is
// added as Client/<ttName> so the client picks it up on first start.
// A failed build leaves no partial file behind.
func WriteClientZip(templateDir, outputPath, ttName, ttContent string) error {
	if _, err := os.Stat(templateDir); err != nil {
		return fmt.Errorf("client template dir: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}

	if err := writeZipEntries(f, templateDir, ttName, ttContent); err != nil {
		_ = f.Close()
		_ = os.Remove(outputPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(outputPath)
		return err
	}
	return nil
}

func writeZipEntries(f *os.File, templateDir, ttName, ttContent string) error {
	zw := zip.NewWriter(f)

	err := filepath.WalkDir(templateDir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(templateDir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		_ = zw.Close()
		return err
	}

	w, err := zw.Create("Client/" + ttName)
	if err != nil {
		_ = zw.Close()
		return err
	}
	if _, err := w.Write([]byte(ttContent)); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}
