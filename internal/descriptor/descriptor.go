package descriptor

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Hara602/rootkitSentry/internal/model"
)

const (
	// GateSize 传统 8 字节门描述符
	GateSize = 8
	// LongGateSize x86-64 长模式下的 16 字节门描述符
	LongGateSize = 16
)

// ErrImplausible 解码结果没有通过合理性检查
var ErrImplausible = errors.New("implausible descriptor")

// Gate 8 字节门描述符的原始字段，按字节偏移显式编解码，不依赖内存布局
/*
struct idt_entry {
	unsigned short offset_low;   // [0:2]
	unsigned short selector;     // [2:4]
	unsigned char  zero;         // [4]
	unsigned char  type_attr;    // [5]
	unsigned short offset_high;  // [6:8]
} __attribute__((packed));
*/
type Gate struct {
	OffsetLow  uint16
	Selector   uint16
	Zero       uint8
	TypeAttr   uint8
	OffsetHigh uint16
}

// Fields 拆出 8 字节里的各个字段，调用方负责保证 len(b) >= GateSize
func Fields(b []byte) Gate {
	return Gate{
		OffsetLow:  binary.LittleEndian.Uint16(b[0:2]),
		Selector:   binary.LittleEndian.Uint16(b[2:4]),
		Zero:       b[4],
		TypeAttr:   b[5],
		OffsetHigh: binary.LittleEndian.Uint16(b[6:8]),
	}
}

// Encode 逆向 Fields
func (g Gate) Encode() [GateSize]byte {
	var b [GateSize]byte
	binary.LittleEndian.PutUint16(b[0:2], g.OffsetLow)
	binary.LittleEndian.PutUint16(b[2:4], g.Selector)
	b[4] = g.Zero
	b[5] = g.TypeAttr
	binary.LittleEndian.PutUint16(b[6:8], g.OffsetHigh)
	return b
}

func (g Gate) Entry() model.DescriptorEntry {
	return model.DescriptorEntry{
		HandlerAddress: uint64(g.OffsetHigh)<<16 | uint64(g.OffsetLow),
		Selector:       g.Selector,
		TypeAttributes: g.TypeAttr,
	}
}

// Decode 把 8 字节门描述符解码成逻辑字段。
// 没有错误返回：硬件格式本身没有有效位，畸形输入也会得到确定的结果。
func Decode(b []byte) model.DescriptorEntry {
	return Fields(b).Entry()
}

// DecodeLong 解码 16 字节长模式门描述符，[8:12] 是处理函数地址的高 32 位
func DecodeLong(b []byte) model.DescriptorEntry {
	e := Decode(b[:GateSize])
	e.HandlerAddress |= uint64(binary.LittleEndian.Uint32(b[8:12])) << 32
	return e
}

// Plausible 合理性检查：门必须存在，处理函数不能落在内核代码段之下
func Plausible(e model.DescriptorEntry, kernelStart uint64) error {
	if !e.Present() {
		return fmt.Errorf("%w: present bit clear (type_attr=0x%02x)", ErrImplausible, e.TypeAttributes)
	}
	if e.HandlerAddress == 0 {
		return fmt.Errorf("%w: null handler", ErrImplausible)
	}
	if kernelStart != 0 && e.HandlerAddress < kernelStart {
		return fmt.Errorf("%w: handler 0x%016x below kernel text 0x%016x", ErrImplausible, e.HandlerAddress, kernelStart)
	}
	return nil
}
