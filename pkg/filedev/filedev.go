package filedev

import (
	"io"
	"os"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

var _ io.ReadWriteSeeker = &FileDev{}

// lockSuffix is appended to the path of the device file to get the path of its lock file.
const lockSuffix = ".lock"

// ErrLocked is returned if the file is already used by another process.
var ErrLocked = errors.New("device file is locked by another process")

// FileDev uses file handle as a device.
type FileDev struct {
	file *os.File
	lock *flock.Flock
	size int64
}

// Open opens the file as a device, creating it if necessary. File shorter than minSize is extended.
// The file is locked exclusively until the device is closed.
func Open(path string, minSize int64) (*FileDev, error) {
	lock := flock.New(path + lockSuffix)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !locked {
		return nil, errors.WithStack(ErrLocked)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		_ = lock.Unlock()
		return nil, errors.WithStack(err)
	}

	fd, err := newDev(file, lock, minSize)
	if err != nil {
		_ = file.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return fd, nil
}

func newDev(file *os.File, lock *flock.Flock, minSize int64) (*FileDev, error) {
	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if size < minSize {
		if err := file.Truncate(minSize); err != nil {
			return nil, errors.WithStack(err)
		}
		size = minSize
	}
	return &FileDev{
		file: file,
		lock: lock,
		size: size,
	}, nil
}

// Seek seeks the position.
func (fd *FileDev) Seek(offset int64, whence int) (int64, error) {
	n, err := fd.file.Seek(offset, whence)
	if err != nil {
		return n, errors.WithStack(err)
	}
	return n, nil
}

// Read reads data from the file.
func (fd *FileDev) Read(p []byte) (int, error) {
	n, err := fd.file.Read(p)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, err
		}
		return n, errors.WithStack(err)
	}
	return n, nil
}

// Write writes data to the file.
func (fd *FileDev) Write(p []byte) (int, error) {
	n, err := fd.file.Write(p)
	if err != nil {
		return n, errors.WithStack(err)
	}
	return n, nil
}

// Sync syncs data to the file.
func (fd *FileDev) Sync() error {
	if err := fd.file.Sync(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Size returns the byte size of the file.
func (fd *FileDev) Size() int64 {
	return fd.size
}

// Close closes the file and releases the lock.
func (fd *FileDev) Close() error {
	closeErr := fd.file.Close()
	unlockErr := fd.lock.Unlock()
	if closeErr != nil {
		return errors.WithStack(closeErr)
	}
	return errors.WithStack(unlockErr)
}
