package locator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Hara602/rootkitSentry/internal/memimage"
	"github.com/Hara602/rootkitSentry/internal/model"
	"go.uber.org/zap"
)

const (
	// PointerSize 扫描步长
	PointerSize = 8
	// DefaultChunkSize 每次从镜像读入的字节数
	DefaultChunkSize = 64 * 1024
)

var (
	// ErrDeadline 扫描超时或被取消，调用方按 TableNotFound 处理
	ErrDeadline = errors.New("table scan deadline exceeded")
	// ErrResourceExhausted 工作缓冲区分配失败，整个扫描需要终止
	ErrResourceExhausted = errors.New("cannot allocate scan buffer")
)

// Query 在 [Start, End) 内寻找 table[Index] == Reference 的表基址。
// Start 和 End 都为 0 时退化为扫描镜像的全部映射区间 (慢)。
type Query struct {
	Start      uint64
	End        uint64
	Index      int
	Reference  uint64
	EntryCount int
}

func (q Query) Degraded() bool {
	return q.Start == 0 && q.End == 0
}

type Locator struct {
	log       *zap.Logger
	chunkSize int
}

func New(log *zap.Logger, chunkSize int) *Locator {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunkSize -= chunkSize % PointerSize
	return &Locator{log: log, chunkSize: chunkSize}
}

// Locate 暴力扫描：每次迭代只读一个字并比较一次。
// 只读取镜像确认已映射的区间，区间之间的空洞直接跳过；某个区间读失败只跳过该区间。
// 找不到返回 (nil, nil)，这是正常结果。
func (l *Locator) Locate(ctx context.Context, img memimage.Image, q Query) (*model.DispatchTable, error) {
	if q.Index < 0 {
		return nil, fmt.Errorf("negative table index %d", q.Index)
	}
	buf, err := allocate(l.chunkSize)
	if err != nil {
		return nil, err
	}

	// table[Index] 所在的地址 = base + Index*8，所以按被比较的字的地址扫描
	offset := uint64(q.Index) * PointerSize
	lo, hi := q.Start, q.End
	if q.Degraded() {
		lo, hi = 0, ^uint64(0)
		l.log.Warn("no scan bounds supplied, falling back to exhaustive scan of all mapped regions (slow)")
	}
	wordLo := satAdd(lo, offset)
	wordHi := satAdd(hi, offset)

	for _, r := range img.Regions() {
		start := max(r.Start, wordLo)
		end := min(r.End, wordHi)
		start = alignUp(start)
		if start >= end {
			continue
		}

		for addr := start; addr < end; {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w at 0x%016x: %v", ErrDeadline, addr, err)
			}
			n := uint64(len(buf))
			if end-addr < n {
				n = (end - addr) &^ (PointerSize - 1)
			}
			if n == 0 {
				break
			}
			chunk := buf[:n]
			if err := memimage.ReadFull(img, chunk, addr); err != nil {
				l.log.Warn("skipping unreadable region",
					zap.String("region", fmt.Sprintf("0x%016x-0x%016x", r.Start, r.End)),
					zap.Error(err))
				break
			}
			for i := 0; i < len(chunk); i += PointerSize {
				if binary.LittleEndian.Uint64(chunk[i:]) != q.Reference {
					continue
				}
				base := addr + uint64(i) - offset
				if base < lo || base >= hi {
					continue
				}
				return &model.DispatchTable{
					BaseAddress: base,
					EntryCount:  q.EntryCount,
					Degraded:    q.Degraded(),
				}, nil
			}
			addr += n
		}
	}
	return nil, nil
}

// ReadEntry 读取已定位表的第 i 项
func ReadEntry(img memimage.Image, t model.DispatchTable, i int) (uint64, error) {
	var word [PointerSize]byte
	if err := memimage.ReadFull(img, word[:], t.Entry(i)); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(word[:]), nil
}

func allocate(n int) (buf []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("%w: %d bytes: %v", ErrResourceExhausted, n, r)
		}
	}()
	return make([]byte, n), nil
}

func alignUp(a uint64) uint64 {
	if rem := a % PointerSize; rem != 0 {
		return satAdd(a, PointerSize-rem)
	}
	return a
}

func satAdd(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return ^uint64(0)
}
