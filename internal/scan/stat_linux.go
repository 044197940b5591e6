//go:build linux

package scan

import (
	"github.com/Hara602/rootkitSentry/internal/model"
	"golang.org/x/sys/unix"
)

// lstatFile 直接按路径查找，不经过目录遍历
func lstatFile(path string) (FileInfo, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return FileInfo{}, err
	}
	t := model.Other
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		t = model.File
	case unix.S_IFDIR:
		t = model.Dir
	}
	return FileInfo{Inode: st.Ino, Type: t, Nlink: uint64(st.Nlink)}, nil
}
