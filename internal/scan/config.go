package scan

import (
	"runtime"
	"time"

	"github.com/Hara602/rootkitSentry/internal/analysis"
)

// x86-64 系统调用号
const (
	nrOpenAMD64  = 2
	nrCloseAMD64 = 3
)

type Config struct {
	KallsymsPath string
	// ImagePath /proc/kcore 或者离线抓取的 ELF core
	ImagePath string
	// RawImageBase 非 0 时 ImagePath 被当作从该地址开始的原始内存转储
	RawImageBase uint64

	// IDTBase 非 0 时不再从 kallsyms 取 idt_table
	IDTBase uint64
	// LongGates 16 字节门描述符 (x86-64)
	LongGates bool

	// ScanStart/ScanEnd 系统调用表的搜索范围，都为 0 时先尝试内核符号，
	// 仍然得不到时退化为全量扫描
	ScanStart     uint64
	ScanEnd       uint64
	CloseNR       int
	OpenNR        int
	TableEntries  int
	LocateTimeout time.Duration
	ChunkSize     int

	ProcRoot   string
	MountsPath string
	MaxPID     int

	Dirs []string
	// WatchList 每个目录下需要直接 lstat 的文件名，不依赖目录遍历
	WatchList    map[string][]string
	BaselinePath string
	InspectTypes bool

	Modules     analysis.ModuleViews
	BadModules  []string
	TaintedPath string
	KprobesList string
}

func DefaultConfig() Config {
	return Config{
		KallsymsPath:  "/proc/kallsyms",
		ImagePath:     "/proc/kcore",
		LongGates:     runtime.GOARCH == "amd64",
		CloseNR:       nrCloseAMD64,
		OpenNR:        nrOpenAMD64,
		TableEntries:  512,
		LocateTimeout: 30 * time.Second,
		ProcRoot:      "/proc",
		MountsPath:    "/proc/mounts",
		Dirs:          []string{"/etc", "/var"},
		WatchList: map[string][]string{
			"/etc": {
				"ld.so.preload", "ld.so.conf", "passwd", "shadow", "motd",
				"modules", "crontab", "rc.local", "profile", "environment",
			},
			"/var": {"spool", "tmp", "log", "lib", "run"},
		},
		InspectTypes: true,
		Modules:      analysis.DefaultModuleViews(),
		TaintedPath:  "/proc/sys/kernel/tainted",
		KprobesList:  "/sys/kernel/debug/kprobes/list",
	}
}
