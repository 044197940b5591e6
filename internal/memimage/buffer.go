package memimage

import (
	"fmt"
	"os"
)

// Buffer 以 Base 为起始地址的一段连续内存
type Buffer struct {
	Base uint64
	Data []byte
}

// OpenRaw 读入一个原始内存转储，Base 为转储起始的虚拟地址
func OpenRaw(path string, base uint64) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw image %s: %w", path, err)
	}
	return &Buffer{Base: base, Data: data}, nil
}

func (b *Buffer) ReadAt(p []byte, addr uint64) (int, error) {
	if !b.region().Contains(addr, len(p)) {
		return 0, fmt.Errorf("%w: 0x%016x", ErrUnmapped, addr)
	}
	off := addr - b.Base
	return copy(p, b.Data[off:]), nil
}

func (b *Buffer) Regions() []Region {
	if len(b.Data) == 0 {
		return nil
	}
	return []Region{b.region()}
}

func (b *Buffer) Close() error { return nil }

func (b *Buffer) region() Region {
	return Region{Start: b.Base, End: b.Base + uint64(len(b.Data))}
}
