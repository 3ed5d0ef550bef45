package utils

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

const tempInfix = ".tmp-"

// WriteFile writes data to dir/name via a temp file in the same directory and
// a rename, so the target is either the previous content or the full new one.
func WriteFile(fs afero.Fs, dir, name string, data []byte) error {
	if err := fs.MkdirAll(dir, os.ModePerm); err != nil {
		return xerrors.Errorf("unable to create %s: %w", dir, err)
	}

	f, err := afero.TempFile(fs, dir, name+tempInfix+"*")
	if err != nil {
		return xerrors.Errorf("unable to open a file: %w", err)
	}
	tmpName := f.Name()

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmpName)
		return xerrors.Errorf("failed to save a file: %w", err)
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmpName)
		return xerrors.Errorf("failed to sync a file: %w", err)
	}
	if err = f.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return xerrors.Errorf("close error: %w", err)
	}

	if err = fs.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		_ = fs.Remove(tmpName)
		return xerrors.Errorf("failed to rename %s: %w", tmpName, err)
	}
	return nil
}

// RemoveTempFiles deletes temp files that WriteFile left in dir when the
// process died before the rename. A missing dir is not an error.
func RemoveTempFiles(fs afero.Fs, dir string) error {
	matches, err := afero.Glob(fs, filepath.Join(dir, "*"+tempInfix+"*"))
	if err != nil {
		return xerrors.Errorf("glob error: %w", err)
	}
	for _, m := range matches {
		if err = fs.Remove(m); err != nil && !os.IsNotExist(err) {
			return xerrors.Errorf("unable to remove %s: %w", m, err)
		}
	}
	return nil
}
