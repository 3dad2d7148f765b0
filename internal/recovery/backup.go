package recovery

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

// maxBackups bounds the rotation in Backup.
const maxBackups = 100

// ErrBackupsExhausted is returned when every rotated backup slot is taken by
// a different file.
var ErrBackupsExhausted = errors.New("no free backup slot")

// Backup copies original to BackupPath(original), keeping its permissions and
// modification time. Backups are never overwritten: an identical existing
// backup is reused, and when the slot holds different content (the file was
// re-sliced under the same name) the copy goes to the next free rotated slot,
// <path>.backup.1, <path>.backup.2 and so on.
func Backup(original string) (string, error) {
	info, err := os.Stat(original)
	if err != nil {
		return "", &FileError{Op: "stat", Path: original, Err: err}
	}
	data, err := os.ReadFile(original)
	if err != nil {
		return "", &FileError{Op: "read", Path: original, Err: err}
	}

	for n := 0; n < maxBackups; n++ {
		dst := rotatedBackupPath(original, n)
		existing, err := os.ReadFile(dst)
		switch {
		case err == nil:
			if bytes.Equal(existing, data) {
				return dst, nil
			}
			continue
		case !errors.Is(err, os.ErrNotExist):
			return "", &FileError{Op: "read", Path: dst, Err: err}
		}

		if err := writeFileAtomic(dst, data, info.Mode().Perm()); err != nil {
			return "", err
		}
		if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
			return "", &FileError{Op: "chtimes", Path: dst, Err: err}
		}
		return dst, nil
	}
	return "", &FileError{Op: "backup", Path: BackupPath(original), Err: ErrBackupsExhausted}
}

func rotatedBackupPath(original string, n int) string {
	if n == 0 {
		return BackupPath(original)
	}
	return fmt.Sprintf("%s.%d", BackupPath(original), n)
}
