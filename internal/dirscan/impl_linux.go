//go:build linux

package dirscan

import (
	"errors"
	"io"

	"github.com/Hara602/rootkitSentry/internal/model"
	"golang.org/x/sys/unix"
)

const direntBufSize = 8192

type getdentsOpener struct{}

func defaultOpener() Opener { return getdentsOpener{} }

func (getdentsOpener) Open(path string) (Handle, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		switch {
		case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENOTDIR),
			errors.Is(err, unix.ELOOP), errors.Is(err, unix.ENAMETOOLONG):
			return nil, &PathResolutionError{Path: path, Err: err}
		}
		return nil, &IoError{Op: "open", Path: path, Err: err}
	}
	return &getdentsHandle{fd: fd, buf: make([]byte, direntBufSize)}, nil
}

type getdentsHandle struct {
	fd  int
	buf []byte
}

func (h *getdentsHandle) Next() ([]model.DirEntry, error) {
	for {
		n, err := unix.Getdents(h.fd, h.buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, io.EOF
		}
		return ParseDirents(h.buf[:n], nil)
	}
}

func (h *getdentsHandle) Close() error {
	return unix.Close(h.fd)
}
