package secure

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/natefinch/atomic"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
)

// ErrInsecurePermissions is returned when an existing file or directory
// is accessible to group or others.
var ErrInsecurePermissions = errors.New("refusing to write: file is readable by group or others")

// ErrSharedDirectory is returned when an existing directory lets group or
// others create and rename files in it.
var ErrSharedDirectory = errors.New("refusing to write: directory is writable by group or others")

// EnsurePrivateDir creates dir with mode 0700 if it does not exist. An
// existing directory may be readable by others, since every file written
// into it is 0600, but not writable by them unless the sticky bit is set.
func EnsurePrivateDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return &vcerrors.IOError{Op: "mkdir", Path: dir, Err: err}
		}
		// MkdirAll is subject to the umask
		if err := os.Chmod(dir, 0o700); err != nil {
			return &vcerrors.IOError{Op: "chmod", Path: dir, Err: err}
		}
		return nil
	case err != nil:
		return &vcerrors.IOError{Op: "stat", Path: dir, Err: err}
	case !info.IsDir():
		return &vcerrors.IOError{Op: "mkdir", Path: dir, Err: fmt.Errorf("not a directory")}
	}

	if sharedDir(info.Mode()) {
		return &vcerrors.IOError{Op: "mkdir", Path: dir, Err: ErrSharedDirectory}
	}
	return nil
}

// WriteFile replaces path with data in one rename. The new file is
// created 0600 from the start; it is never chmod'ed after writing.
func WriteFile(path string, data []byte) error {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.Mode().IsRegular() {
			return &vcerrors.IOError{Op: "write", Path: path, Err: fmt.Errorf("not a regular file")}
		}
		// atomic.WriteFile carries the old mode over to the new file
		if insecureMode(info.Mode()) {
			return &vcerrors.IOError{Op: "write", Path: path, Err: ErrInsecurePermissions}
		}
	case !errors.Is(err, fs.ErrNotExist):
		return &vcerrors.IOError{Op: "stat", Path: path, Err: err}
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return &vcerrors.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// WritePrivateFile is WriteFile after EnsurePrivateDir on the parent.
func WritePrivateFile(path string, data []byte) error {
	if err := EnsurePrivateDir(filepath.Dir(path)); err != nil {
		return err
	}
	return WriteFile(path, data)
}

// CheckPrivate reports ErrInsecurePermissions for a group/world readable
// file. A missing file is fine.
func CheckPrivate(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &vcerrors.IOError{Op: "stat", Path: path, Err: err}
	}
	if insecureMode(info.Mode()) {
		return &vcerrors.IOError{Op: "read", Path: path, Err: ErrInsecurePermissions}
	}
	return nil
}

func insecureMode(mode fs.FileMode) bool {
	if runtime.GOOS == "windows" {
		return false
	}
	return mode.Perm()&0o077 != 0
}

func sharedDir(mode fs.FileMode) bool {
	if runtime.GOOS == "windows" || mode&fs.ModeSticky != 0 {
		return false
	}
	return mode.Perm()&0o022 != 0
}
