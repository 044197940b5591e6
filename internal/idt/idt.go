// Package idt 检查中断描述符表 0 号向量 (除零错误) 的处理函数。
// 这只是启发式检查：合法打过补丁的内核同样会报不一致。
package idt

import (
	"context"
	"fmt"

	"github.com/Hara602/rootkitSentry/internal/descriptor"
	"github.com/Hara602/rootkitSentry/internal/ksyms"
	"github.com/Hara602/rootkitSentry/internal/memimage"
	"github.com/Hara602/rootkitSentry/internal/model"
)

// DivideErrorVector #DE
const DivideErrorVector = 0

// BaseReader 读取 IDTR 中的表基址
type BaseReader interface {
	IDTBase() (uint64, error)
}

// SymbolBase 用 kallsyms 中的 idt_table 代替 sidt
type SymbolBase struct {
	Symbols *ksyms.Table
}

func (s SymbolBase) IDTBase() (uint64, error) {
	return s.Symbols.Address(ksyms.IDTTable...)
}

// FixedBase 调用方已知的基址，例如离线镜像附带的 IDTR 值
type FixedBase uint64

func (f FixedBase) IDTBase() (uint64, error) { return uint64(f), nil }

type Inspector struct {
	Base     BaseReader
	Image    memimage.Image
	Expected uint64
	// Long 为 true 时按 16 字节长模式门描述符解码
	Long bool
	// KernelStart 合理性检查用的内核代码段起始地址，0 表示不检查
	KernelStart uint64
}

// Result 一次检查的结果，Entry 只在本次比较中使用
type Result struct {
	Base     uint64
	Entry    model.DescriptorEntry
	Expected uint64
	Match    bool
	// Inconsistent 解码结果没通过合理性检查
	Inconsistent error
}

// Check 读取并比较 0 号向量
func (in *Inspector) Check(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base, err := in.Base.IDTBase()
	if err != nil {
		return nil, fmt.Errorf("read IDT base: %w", err)
	}

	size := descriptor.GateSize
	if in.Long {
		size = descriptor.LongGateSize
	}
	raw := make([]byte, size)
	addr := base + uint64(DivideErrorVector*size)
	if err := memimage.ReadFull(in.Image, raw, addr); err != nil {
		return nil, fmt.Errorf("read IDT vector %d at 0x%016x: %w", DivideErrorVector, addr, err)
	}

	res := &Result{Base: base, Expected: in.Expected}
	kernelStart := in.KernelStart
	if in.Long {
		res.Entry = descriptor.DecodeLong(raw)
	} else {
		res.Entry = descriptor.Decode(raw)
		// 8 字节门只能表示 32 位地址
		res.Expected &= 0xffffffff
		kernelStart &= 0xffffffff
	}
	res.Match = res.Entry.HandlerAddress == res.Expected
	res.Inconsistent = descriptor.Plausible(res.Entry, kernelStart)
	return res, nil
}
