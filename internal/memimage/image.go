package memimage

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

var (
	// ErrUnmapped 地址不在任何已映射区域内，不会去读
	ErrUnmapped = errors.New("address not mapped in image")
	// ErrPartialRead 读到的字节数少于请求，不重试
	ErrPartialRead = errors.New("partial read")
)

// Region 平台确认已映射的地址区间 [Start, End)
type Region struct {
	Start uint64
	End   uint64
}

func (r Region) Contains(addr uint64, n int) bool {
	return addr >= r.Start && addr+uint64(n) <= r.End && addr+uint64(n) >= addr
}

// Image 内存镜像：/proc/kcore、离线抓取的镜像或测试用的缓冲区
type Image interface {
	ReadAt(p []byte, addr uint64) (int, error)
	Regions() []Region
	Close() error
}

// ReadFull 读 len(p) 个字节，不足时返回 ErrPartialRead
func ReadFull(img Image, p []byte, addr uint64) error {
	n, err := img.ReadAt(p, addr)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if n < len(p) {
		return fmt.Errorf("%w: 0x%016x got %d of %d bytes", ErrPartialRead, addr, n, len(p))
	}
	return nil
}

type segment struct {
	Region
	r io.ReaderAt
}

// elfImage 基于 ELF core (例如 /proc/kcore) 的镜像，PT_LOAD 段即已映射区间
type elfImage struct {
	f        *os.File
	segments []segment
}

// OpenELF 打开 /proc/kcore 或者抓取下来的 ELF core 文件
func OpenELF(path string) (Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	f, err := elf.NewFile(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to parse %s as ELF: %w", path, err)
	}

	img := &elfImage{f: file}
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Filesz == 0 {
			continue
		}
		img.segments = append(img.segments, segment{
			Region: Region{Start: prog.Vaddr, End: prog.Vaddr + prog.Filesz},
			r:      prog,
		})
	}
	sort.Slice(img.segments, func(i, j int) bool {
		return img.segments[i].Start < img.segments[j].Start
	})
	return img, nil
}

func (e *elfImage) ReadAt(p []byte, addr uint64) (int, error) {
	for _, seg := range e.segments {
		if !seg.Contains(addr, len(p)) {
			continue
		}
		return seg.r.ReadAt(p, int64(addr-seg.Start))
	}
	return 0, fmt.Errorf("%w: 0x%016x", ErrUnmapped, addr)
}

func (e *elfImage) Regions() []Region {
	out := make([]Region, len(e.segments))
	for i, seg := range e.segments {
		out[i] = seg.Region
	}
	return out
}

func (e *elfImage) Close() error {
	return e.f.Close()
}
