// ABOUTME: Atomic session file writes on Unix-like systems
// ABOUTME: Delegates to renameio for temp-file, fsync and rename

//go:build !windows

package session

import (
	"os"

	"github.com/google/renameio/v2"
)

// writeFileAtomic syncs data to a temp file beside name and renames it
// into place, so readers see the old file or the new one. The result
// always has perm, even when it replaces a file with wider permissions.
func writeFileAtomic(name string, data []byte, perm os.FileMode) error {
	pf, err := renameio.NewPendingFile(name, renameio.WithPermissions(perm))
	if err != nil {
		return err
	}
	defer pf.Cleanup()

	if _, err := pf.Write(data); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}
