package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Hara602/rootkitSentry/internal/agent"
	"github.com/Hara602/rootkitSentry/internal/scan"
	"github.com/Hara602/rootkitSentry/internal/sysutil"
	"go.uber.org/zap"
)

// addrFlag 接受 0x 前缀的十六进制地址
type addrFlag struct{ p *uint64 }

func (a addrFlag) String() string {
	if a.p == nil || *a.p == 0 {
		return ""
	}
	return fmt.Sprintf("0x%x", *a.p)
}

func (a addrFlag) Set(s string) error {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return err
	}
	*a.p = v
	return nil
}

// listFlag 逗号分隔的列表
type listFlag struct{ p *[]string }

func (l listFlag) String() string {
	if l.p == nil {
		return ""
	}
	return strings.Join(*l.p, ",")
}

func (l listFlag) Set(s string) error {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	*l.p = out
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg := scan.DefaultConfig()
	var debug, jsonLog, noFiletype bool

	flag.StringVar(&cfg.KallsymsPath, "kallsyms", cfg.KallsymsPath, "Kernel symbol table")
	flag.StringVar(&cfg.ImagePath, "image", cfg.ImagePath, "Memory image: /proc/kcore, an ELF core or a raw dump")
	flag.Var(addrFlag{&cfg.RawImageBase}, "raw-base", "Treat -image as a raw dump starting at this address")
	flag.Var(addrFlag{&cfg.IDTBase}, "idt-base", "IDT base address (default: idt_table from kallsyms)")
	flag.BoolVar(&cfg.LongGates, "long-gates", cfg.LongGates, "Decode 16-byte long mode gate descriptors")
	flag.Var(addrFlag{&cfg.ScanStart}, "scan-start", "Lower bound of the system call table search")
	flag.Var(addrFlag{&cfg.ScanEnd}, "scan-end", "Upper bound of the system call table search")
	flag.IntVar(&cfg.CloseNR, "nr-close", cfg.CloseNR, "System call number of close")
	flag.IntVar(&cfg.OpenNR, "nr-open", cfg.OpenNR, "System call number of open")
	flag.DurationVar(&cfg.LocateTimeout, "timeout", cfg.LocateTimeout, "Deadline for the system call table search")
	flag.StringVar(&cfg.ProcRoot, "proc", cfg.ProcRoot, "procfs mount point")
	flag.IntVar(&cfg.MaxPID, "max-pid", cfg.MaxPID, "Highest pid to probe (default: kernel pid_max)")
	flag.Var(listFlag{&cfg.Dirs}, "dirs", "Directories to check for hidden files")
	flag.StringVar(&cfg.BaselinePath, "baseline", cfg.BaselinePath, "SQLite file with expected directory contents")
	flag.Var(listFlag{&cfg.BadModules}, "bad-module", "Known rootkit module names")
	flag.BoolVar(&noFiletype, "no-filetype", false, "Skip the file type check on hidden and new files")
	flag.BoolVar(&debug, "debug", false, "Debug logging")
	flag.BoolVar(&jsonLog, "json", false, "JSON logging")
	flag.Parse()
	cfg.InspectTypes = !noFiletype

	// 初始化日志
	sysutil.InitLogger(debug, jsonLog)
	defer sysutil.Log.Sync()

	// /proc/kcore 和 kill 探测需要 Root 权限
	if os.Geteuid() != 0 && cfg.ImagePath == "/proc/kcore" {
		sysutil.LogSugar.Error("Must run as root (required by /proc/kcore and the pid probe).")
		return 1
	}

	sysutil.Log.Info("🛡️ Rootkit Sentry starting...",
		zap.String("image", cfg.ImagePath),
		zap.Strings("dirs", cfg.Dirs))

	// 捕获操作系统信号，中断正在进行的扫描
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := agent.New(cfg, sysutil.Log, os.Stdout)
	defer a.Deactivate()
	return a.Activate(ctx)
}
