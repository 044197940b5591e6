//go:build !linux

package dirscan

import (
	"errors"
	"io/fs"
	"os"

	"github.com/Hara602/rootkitSentry/internal/model"
)

type osOpener struct{}

func defaultOpener() Opener { return osOpener{} }

func (osOpener) Open(path string) (Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &PathResolutionError{Path: path, Err: err}
	}
	if !info.IsDir() {
		return nil, &PathResolutionError{Path: path, Err: errors.New("not a directory")}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &IoError{Op: "open", Path: path, Err: err}
	}
	return &osHandle{f: f}, nil
}

type osHandle struct {
	f *os.File
}

func (h *osHandle) Next() ([]model.DirEntry, error) {
	des, err := h.f.ReadDir(128)
	out := make([]model.DirEntry, 0, len(des))
	for _, de := range des {
		t := model.Other
		switch {
		case de.Type().IsRegular():
			t = model.File
		case de.Type()&fs.ModeDir != 0:
			t = model.Dir
		}
		out = append(out, model.DirEntry{Name: de.Name(), Type: t})
	}
	return out, err
}

func (h *osHandle) Close() error { return h.f.Close() }
