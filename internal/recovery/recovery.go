// Package recovery writes the resume file for an interrupted print job and
// the backup of the original G-code it is derived from.
package recovery

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fakeyudi/printrescue/internal/gcode"
)

// RecoveryPrefix is prepended to the original file name to name the resume file.
const RecoveryPrefix = "reCover_"

// BackupSuffix is appended to the original path to name the backup.
const BackupSuffix = ".backup"

// Options controls synthesis.
type Options struct {
	Index gcode.Options
	// WriteEmpty writes a recovery file even when nothing is left to run.
	WriteEmpty bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{Index: gcode.DefaultOptions()}
}

// FileError is returned when reading or writing a job file fails.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// RecoveryPath returns the resume file path for original: same directory,
// base name prefixed with RecoveryPrefix.
func RecoveryPath(original string) string {
	return filepath.Join(filepath.Dir(original), RecoveryPrefix+filepath.Base(original))
}

// BackupPath returns the backup path for original.
func BackupPath(original string) string {
	return original + BackupSuffix
}

// FeedLine returns the G1 F command for feedRate, written as given. Negative
// or non-finite rates are written as 0.
func FeedLine(feedRate float64) string {
	if feedRate < 0 || math.IsNaN(feedRate) || math.IsInf(feedRate, 0) {
		feedRate = 0
	}
	return "G1 F" + strconv.FormatFloat(feedRate, 'f', -1, 64)
}

// Compose builds the resume document: settings prefix, last Z move, trailing
// commands and feed line, each on its own line, followed by the untouched
// remainder of doc from fr.Cut. An empty prefix contributes nothing.
func Compose(doc string, fr gcode.Fragments, feedRate float64) []byte {
	var b bytes.Buffer
	b.Grow(len(fr.SettingsPrefix) + len(fr.PositionLine) + len(fr.TrailingLines) + len(doc) - fr.Cut + 32)

	writeLine := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	if fr.SettingsPrefix != "" {
		writeLine(fr.SettingsPrefix)
	}
	if fr.HasPosition {
		writeLine(fr.PositionLine)
	}
	if fr.HasTrailing {
		writeLine(fr.TrailingLines)
	}
	writeLine(FeedLine(feedRate))
	b.WriteString(doc[fr.Cut:])
	return b.Bytes()
}

// Synthesize indexes doc at offset and writes the resume document to dest.
// It reports false without touching dest when the remainder is blank, unless
// opts.WriteEmpty is set. dest is replaced atomically.
func Synthesize(doc string, offset uint64, feedRate float64, dest string, opts Options) (bool, error) {
	fr := gcode.Index(doc, offset, opts.Index)
	return synthesize(doc, fr, feedRate, dest, opts, 0o644)
}

func synthesize(doc string, fr gcode.Fragments, feedRate float64, dest string, opts Options, perm os.FileMode) (bool, error) {
	if !opts.WriteEmpty && strings.TrimSpace(fr.Remainder(doc)) == "" {
		return false, nil
	}
	if err := writeFileAtomic(dest, Compose(doc, fr, feedRate), perm); err != nil {
		return false, err
	}
	return true, nil
}

// Result describes one finalization.
type Result struct {
	OriginalPath string
	BackupPath   string
	RecoveryPath string
	Offset       uint64
	FeedRate     float64
	Fragments    gcode.Fragments
	// Written is false when there was nothing left to resume.
	Written bool
}

// Recover backs up original, then synthesizes its resume file from offset.
// The original file is never modified.
func Recover(original string, offset uint64, feedRate float64, opts Options) (Result, error) {
	res := Result{
		OriginalPath: original,
		RecoveryPath: RecoveryPath(original),
		Offset:       offset,
		FeedRate:     feedRate,
	}

	backup, err := Backup(original)
	if err != nil {
		return res, err
	}
	res.BackupPath = backup

	info, err := os.Stat(original)
	if err != nil {
		return res, &FileError{Op: "stat", Path: original, Err: err}
	}
	data, err := os.ReadFile(original)
	if err != nil {
		return res, &FileError{Op: "read", Path: original, Err: err}
	}
	doc := string(data)

	res.Fragments = gcode.Index(doc, offset, opts.Index)
	res.Written, err = synthesize(doc, res.Fragments, feedRate, res.RecoveryPath, opts, info.Mode().Perm())
	if err != nil {
		return res, err
	}
	return res, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it into
// place, so readers see either the old file or the complete new one.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return &FileError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return &FileError{Op: "write", Path: path, Err: err}
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return &FileError{Op: "sync", Path: path, Err: err}
	}
	if err = tmp.Close(); err != nil {
		return &FileError{Op: "write", Path: path, Err: err}
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return &FileError{Op: "chmod", Path: path, Err: err}
	}
	if err = os.Rename(tmpName, path); err != nil {
		return &FileError{Op: "rename", Path: path, Err: fmt.Errorf("%s: %w", tmpName, err)}
	}
	return nil
}
