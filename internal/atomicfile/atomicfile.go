// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package atomicfile writes cache artifacts so that readers, including
// readers after a crash, see either no file or the whole of it.
package atomicfile

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

const (
	// DirPerm is the mode of directories created for artifacts.
	DirPerm os.FileMode = 0o755
	// FilePerm is the mode of every artifact, whatever the umask.
	FilePerm os.FileMode = 0o644
)

// tempMarker is part of the name of every temporary file. Temporary files
// are hidden so that globs over artifact names skip them.
const tempMarker = ".tmp-"

// Create writes data to path, creating its directory as needed. The data goes
// to a synced temporary file that is then renamed over path, and the
// directory is synced so that the rename outlives a crash.
func Create(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return errors.Wrap(err, "cannot create directory")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+tempMarker+"*")
	if err != nil {
		return errors.Wrap(err, "cannot create temporary file")
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	// CreateTemp uses 0600. Windows has no mode bits to set.
	if err := tmp.Chmod(FilePerm); err != nil && runtime.GOOS != "windows" {
		return errors.Wrap(err, "cannot set mode of temporary file")
	}
	if _, err := tmp.Write(data); err != nil {
		return errors.Wrap(err, "cannot write temporary file")
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, "cannot sync temporary file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "cannot close temporary file")
	}

	// Renaming over an existing file fails on Windows.
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(path)
		if err2 := os.Rename(tmpPath, path); err2 != nil {
			return errors.Wrapf(err, "cannot replace %s", path)
		}
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrap(err, "cannot sync directory")
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return errors.Wrap(err, "cannot sync directory")
	}
	return nil
}

// CleanTemp removes the temporary files that interrupted writes left in dir
// and returns how many it removed. A missing dir holds none.
func CleanTemp(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "cannot list temporary files")
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, ".") || !strings.Contains(name, tempMarker) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return removed, errors.Wrap(err, "cannot remove temporary file")
		}
		removed++
	}
	return removed, nil
}
