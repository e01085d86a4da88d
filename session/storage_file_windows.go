// ABOUTME: Atomic session file writes on Windows
// ABOUTME: Temp-file, fsync and rename without renameio, which does not support Windows

package session

import (
	"os"
	"path/filepath"
)

// writeFileAtomic mirrors the renameio behaviour used elsewhere; renameio
// does not build on Windows.
func writeFileAtomic(name string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}
