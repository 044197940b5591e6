//go:build !linux

package scan

import (
	"os"

	"github.com/Hara602/rootkitSentry/internal/model"
)

func lstatFile(path string) (FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return FileInfo{}, err
	}
	t := model.Other
	switch {
	case info.Mode().IsRegular():
		t = model.File
	case info.IsDir():
		t = model.Dir
	}
	return FileInfo{Type: t}, nil
}
