package model

// CommLen 内核 task_struct.comm 的长度 (TASK_COMM_LEN, 含结尾的 0)
const CommLen = 16

// DescriptorEntry IDT 门描述符的逻辑字段
type DescriptorEntry struct {
	HandlerAddress uint64
	Selector       uint16
	TypeAttributes uint8
}

// Present 门描述符的 P 位
func (d DescriptorEntry) Present() bool {
	return d.TypeAttributes&0x80 != 0
}

// DispatchTable 猜测的系统调用表位置，只是一个假设，不代表一定正确
type DispatchTable struct {
	BaseAddress uint64
	EntryCount  int
	// Degraded 表示没有调用方给出的范围，退化为全量扫描
	Degraded bool
}

// Entry 第 i 项的地址
func (t DispatchTable) Entry(i int) uint64 {
	return t.BaseAddress + uint64(i)*8
}

// ProcessRecord 调度器视角下的一个进程
type ProcessRecord struct {
	PID  int64
	Name string
}

type EntryType int

const (
	File EntryType = iota
	Dir
	Other
)

func (t EntryType) String() string {
	switch t {
	case File:
		return "file"
	case Dir:
		return "dir"
	}
	return "other"
}

// DirEntry 目录项，只在回调期间有效，需要保留时请复制
type DirEntry struct {
	Name  string
	Inode uint64
	Type  EntryType
}
