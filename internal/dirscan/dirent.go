package dirscan

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Hara602/rootkitSentry/internal/model"
)

// ErrBadDirent d_reclen 不合理，后面的数据无法继续解析
var ErrBadDirent = errors.New("malformed linux_dirent64 record")

// ParseDirents 按字节偏移解码 getdents64 返回的缓冲区
// 缓冲区结构: [linux_dirent64] + [linux_dirent64] ...
func ParseDirents(buf []byte, out []model.DirEntry) ([]model.DirEntry, error) {
	for off := 0; off < len(buf); {
		rec := buf[off:]
		if len(rec) < model.DirentNameOffset {
			return out, fmt.Errorf("%w: %d trailing bytes", ErrBadDirent, len(rec))
		}
		reclen := int(binary.LittleEndian.Uint16(rec[model.DirentReclenOffset:]))
		if reclen <= model.DirentNameOffset || reclen > len(rec) {
			return out, fmt.Errorf("%w: reclen %d at offset %d", ErrBadDirent, reclen, off)
		}

		// d_name 以 0 结尾，后面可能有对齐填充
		name := rec[model.DirentNameOffset:reclen]
		if idx := bytes.IndexByte(name, 0); idx != -1 {
			name = name[:idx]
		}
		out = append(out, model.DirEntry{
			Name:  string(name),
			Inode: binary.LittleEndian.Uint64(rec[model.DirentInoOffset:]),
			Type:  entryType(rec[model.DirentTypeOffset]),
		})
		off += reclen
	}
	return out, nil
}

// AppendDirent 编码一条 linux_dirent64，按 8 字节对齐
func AppendDirent(buf []byte, e model.DirEntry, dtype uint8, off int64) []byte {
	reclen := (model.DirentNameOffset + len(e.Name) + 1 + 7) &^ 7
	rec := make([]byte, reclen)
	binary.LittleEndian.PutUint64(rec[model.DirentInoOffset:], e.Inode)
	binary.LittleEndian.PutUint64(rec[model.DirentOffOffset:], uint64(off))
	binary.LittleEndian.PutUint16(rec[model.DirentReclenOffset:], uint16(reclen))
	rec[model.DirentTypeOffset] = dtype
	copy(rec[model.DirentNameOffset:], e.Name)
	return append(buf, rec...)
}

func entryType(dtype uint8) model.EntryType {
	switch dtype {
	case model.DTReg:
		return model.File
	case model.DTDir:
		return model.Dir
	}
	return model.Other
}
