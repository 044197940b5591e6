package scan

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/Hara602/rootkitSentry/internal/analysis"
	"github.com/Hara602/rootkitSentry/internal/descriptor"
	"github.com/Hara602/rootkitSentry/internal/dirscan"
	"github.com/Hara602/rootkitSentry/internal/idt"
	"github.com/Hara602/rootkitSentry/internal/ksyms"
	"github.com/Hara602/rootkitSentry/internal/memimage"
	"github.com/Hara602/rootkitSentry/internal/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	kbase     = 0xffffffff81000000
	divErr    = kbase + 0x100
	closeFn   = kbase + 0x200
	openFn    = kbase + 0x300
	idtOff    = 0x1000
	tableOff  = 0x2000
	imageSize = 0x4000
)

const kallsyms = `ffffffff81000000 T _text
ffffffff81000100 T asm_exc_divide_error
ffffffff81000200 T __x64_sys_close
ffffffff81000300 T __x64_sys_open
ffffffff81001000 D idt_table
ffffffff81002000 R sys_call_table
ffffffff81004000 R __end_rodata
0000000000000000 t hidden_by_kptr_restrict
`

// kernelImage IDT 在 idtOff，系统调用表在 tableOff
func kernelImage(handler, open uint64) []byte {
	mem := make([]byte, imageSize)
	g := descriptor.Gate{
		OffsetLow:  uint16(handler & 0xffff),
		Selector:   0x10,
		TypeAttr:   0x8e,
		OffsetHigh: uint16((handler >> 16) & 0xffff),
	}
	raw := g.Encode()
	copy(mem[idtOff:], raw[:])
	binary.LittleEndian.PutUint32(mem[idtOff+8:], uint32(handler>>32))

	for i := 0; i < 512; i++ {
		binary.LittleEndian.PutUint64(mem[tableOff+i*8:], kbase+0x800+uint64(i)*8)
	}
	binary.LittleEndian.PutUint64(mem[tableOff+2*8:], open)
	binary.LittleEndian.PutUint64(mem[tableOff+3*8:], closeFn)
	return mem
}

// multiImage 多个不连续的区间，holes 是声明为已映射但读不出来的区间
type multiImage struct {
	bufs  []*memimage.Buffer
	holes []memimage.Region
}

func (m *multiImage) ReadAt(p []byte, addr uint64) (int, error) {
	for _, b := range m.bufs {
		if r := b.Regions(); len(r) == 1 && r[0].Contains(addr, len(p)) {
			return b.ReadAt(p, addr)
		}
	}
	return 0, fmt.Errorf("%w: 0x%016x", memimage.ErrUnmapped, addr)
}

func (m *multiImage) Regions() []memimage.Region {
	out := slices.Clone(m.holes)
	for _, b := range m.bufs {
		out = append(out, b.Regions()...)
	}
	slices.SortFunc(out, func(a, b memimage.Region) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})
	return out
}

func (m *multiImage) Close() error { return nil }

type fakeLister []model.ProcessRecord

func (f fakeLister) Processes() iter.Seq[model.ProcessRecord] { return slices.Values(f) }

type fakeProber struct {
	recs []model.ProcessRecord
	err  error
}

func (p fakeProber) Probe(context.Context) ([]model.ProcessRecord, error) { return p.recs, p.err }

type sliceHandle struct {
	entries []model.DirEntry
	done    bool
}

func (h *sliceHandle) Next() ([]model.DirEntry, error) {
	if h.done {
		return nil, io.EOF
	}
	h.done = true
	return h.entries, nil
}

func (h *sliceHandle) Close() error { return nil }

type dirOpener map[string][]model.DirEntry

func (o dirOpener) Open(p string) (dirscan.Handle, error) {
	entries, ok := o[p]
	if !ok {
		return nil, &dirscan.PathResolutionError{Path: p, Err: fs.ErrNotExist}
	}
	return &sliceHandle{entries: entries}, nil
}

type fakeStat map[string]FileInfo

func (f fakeStat) lstat(p string) (FileInfo, error) {
	fi, ok := f[p]
	if !ok {
		return FileInfo{}, &fs.PathError{Op: "lstat", Path: p, Err: fs.ErrNotExist}
	}
	return fi, nil
}

type memBaseline map[string][]string

func (b memBaseline) Names(_ context.Context, dir string) ([]string, error) { return b[dir], nil }

func (b memBaseline) Record(_ context.Context, dir string, entries []model.DirEntry) error {
	for _, e := range entries {
		if !slices.Contains(b[dir], e.Name) {
			b[dir] = append(b[dir], e.Name)
		}
	}
	return nil
}

type host struct {
	cfg     Config
	deps    *Deps
	mem     []byte
	listing dirOpener
	stat    fakeStat
}

// newHost 一台干净的主机：所有视图一致
func newHost(t *testing.T) *host {
	t.Helper()
	syms, err := ksyms.Parse(strings.NewReader(kallsyms))
	if err != nil {
		t.Fatal(err)
	}

	modDir := t.TempDir()
	procModules := filepath.Join(modDir, "modules")
	writeFile(t, procModules, "ext4 1 0 - Live 0x0\n")
	writeFile(t, filepath.Join(modDir, "sys", "ext4", "initstate"), "live\n")
	if err := os.MkdirAll(filepath.Join(modDir, "sys", "kernel"), 0o755); err != nil {
		t.Fatal(err)
	}

	h := &host{
		mem: kernelImage(divErr, openFn),
		listing: dirOpener{"/etc": {
			{Name: "passwd", Inode: 10, Type: model.File},
			{Name: "hosts", Inode: 11, Type: model.File},
			{Name: "ssl", Inode: 12, Type: model.Dir},
		}},
		stat: fakeStat{
			"/etc":        {Inode: 2, Type: model.Dir, Nlink: 3},
			"/etc/passwd": {Inode: 10, Type: model.File, Nlink: 1},
			"/etc/hosts":  {Inode: 11, Type: model.File, Nlink: 1},
			"/etc/ssl":    {Inode: 12, Type: model.Dir, Nlink: 2},
		},
	}

	cfg := DefaultConfig()
	cfg.LongGates = true
	cfg.LocateTimeout = 5 * time.Second
	cfg.MountsPath = ""
	cfg.Dirs = []string{"/etc"}
	cfg.WatchList = map[string][]string{"/etc": {"passwd", "ld.so.preload"}}
	cfg.Modules = analysis.ModuleViews{SysModule: filepath.Join(modDir, "sys"), ProcModules: procModules}
	cfg.TaintedPath = ""
	cfg.KprobesList = ""
	h.cfg = cfg

	procs := []model.ProcessRecord{{PID: 1, Name: "init"}, {PID: 42, Name: "sshd"}}
	h.deps = &Deps{
		Image:     &memimage.Buffer{Base: kbase, Data: h.mem},
		Symbols:   syms,
		IDTBase:   idt.SymbolBase{Symbols: syms},
		Lister:    fakeLister(procs),
		Prober:    fakeProber{recs: procs},
		Walker:    dirscan.New(h.listing),
		Stat:      h.stat.lstat,
		Inspector: analysis.NewTypeInspector(),
	}
	return h
}

func (h *host) run(t *testing.T) *Report {
	t.Helper()
	report, err := New(h.cfg, h.deps, zap.NewNop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return report
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func ofKind(r *Report, k model.Kind) []model.Anomaly {
	var out []model.Anomaly
	for _, a := range r.Anomalies {
		if a.Kind == k {
			out = append(out, a)
		}
	}
	return out
}

func TestRunCleanHost(t *testing.T) {
	report := newHost(t).run(t)
	if report.Summary.Total != 0 {
		t.Fatalf("anomalies on a clean host: %v", report.Anomalies)
	}
	if report.Summary.Status != 0 {
		t.Errorf("status = %d", report.Summary.Status)
	}
	if report.Table == nil || report.Table.BaseAddress != kbase+tableOff {
		t.Fatalf("table = %+v, want base 0x%x", report.Table, uint64(kbase+tableOff))
	}
	if report.Table.Degraded {
		t.Error("table located with kernel bounds reported as degraded")
	}
	if report.SessionID == "" {
		t.Error("missing session id")
	}
}

func TestRunIDTDefaultHandler(t *testing.T) {
	report := newHost(t).run(t)
	if got := ofKind(report, model.IdtMismatch); len(got) != 0 {
		t.Fatalf("IdtMismatch = %v, want none", got)
	}
}

func TestRunIDTHooked(t *testing.T) {
	h := newHost(t)
	copy(h.mem, kernelImage(kbase+0x3f00, openFn))
	report := h.run(t)

	got := ofKind(report, model.IdtMismatch)
	if len(got) != 1 || got[0].Severity != model.Critical {
		t.Fatalf("IdtMismatch = %v, want one critical", got)
	}
}

func TestRunIDTImplausible(t *testing.T) {
	h := newHost(t)
	// present 位清零
	h.mem[idtOff+5] = 0x0e
	report := h.run(t)

	got := ofKind(report, model.IdtMismatch)
	if len(got) != 1 || got[0].Severity != model.Warning {
		t.Fatalf("IdtMismatch = %v, want one warning", got)
	}
}

func TestRunTableNotFound(t *testing.T) {
	h := newHost(t)
	// 只覆盖 IDT 所在的页
	h.cfg.ScanStart = kbase
	h.cfg.ScanEnd = kbase + idtOff + 0x100
	report := h.run(t)

	got := ofKind(report, model.TableNotFound)
	if len(got) != 1 || got[0].Severity != model.Warning {
		t.Fatalf("TableNotFound = %v, want exactly one warning", got)
	}
	if report.Table != nil {
		t.Errorf("table = %+v, want nil", report.Table)
	}
	if n := len(ofKind(report, model.DispatchTableMismatch)); n != 0 {
		t.Errorf("%d table mismatches without a table", n)
	}
}

// slowImage 每次读取都要等一会儿，用来触发搜索超时
type slowImage struct {
	memimage.Image
	delay time.Duration
}

func (s slowImage) ReadAt(p []byte, addr uint64) (int, error) {
	time.Sleep(s.delay)
	return s.Image.ReadAt(p, addr)
}

func TestRunTableDeadline(t *testing.T) {
	h := newHost(t)
	h.deps.Image = slowImage{Image: h.deps.Image, delay: time.Millisecond}
	h.cfg.LocateTimeout = time.Millisecond
	h.cfg.ScanStart = kbase + tableOff + 0x100
	h.cfg.ScanEnd = kbase + imageSize
	h.cfg.ChunkSize = 8
	report := h.run(t)

	got := ofKind(report, model.TableNotFound)
	if len(got) != 1 || !strings.Contains(got[0].Detail, "gave up") {
		t.Fatalf("TableNotFound = %v, want one deadline warning", got)
	}
	if len(ofKind(report, model.CheckIncomplete)) != 0 {
		t.Error("deadline must not be reported as an incomplete check")
	}
}

func TestRunOpenHooked(t *testing.T) {
	h := newHost(t)
	binary.LittleEndian.PutUint64(h.mem[tableOff+2*8:], 0xffffffffc0ffee00)
	report := h.run(t)

	got := ofKind(report, model.DispatchTableMismatch)
	if len(got) != 1 || got[0].Severity != model.Critical {
		t.Fatalf("DispatchTableMismatch = %v, want one critical", got)
	}
	if !strings.Contains(got[0].Detail, "0xffffffffc0ffee00") {
		t.Errorf("detail %q does not name the hook", got[0].Detail)
	}
}

func TestRunDegradedSearch(t *testing.T) {
	h := newHost(t)
	syms, err := ksyms.Parse(strings.NewReader(strings.ReplaceAll(kallsyms, "_text", "not_text")))
	if err != nil {
		t.Fatal(err)
	}
	h.deps.Symbols = syms
	h.deps.IDTBase = idt.SymbolBase{Symbols: syms}
	h.deps.Image = &multiImage{
		bufs: []*memimage.Buffer{
			{Base: 0x10000, Data: make([]byte, 256)},
			{Base: kbase, Data: h.mem},
		},
		holes: []memimage.Region{{Start: 0x20000, End: 0x30000}},
	}
	core, logs := observer.New(zap.WarnLevel)
	report, err := New(h.cfg, h.deps, zap.New(core)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := logs.FilterMessageSnippet("exhaustive scan").Len(); n != 1 {
		t.Errorf("unbounded search logged %d times, want once", n)
	}

	if report.Table == nil || report.Table.BaseAddress != kbase+tableOff || !report.Table.Degraded {
		t.Fatalf("table = %+v, want degraded table at 0x%x", report.Table, uint64(kbase+tableOff))
	}
	if report.Summary.Total != 0 {
		t.Errorf("anomalies: %v", report.Anomalies)
	}
}

func TestRunSysCallTableSymbolMismatch(t *testing.T) {
	h := newHost(t)
	syms, err := ksyms.Parse(strings.NewReader(strings.Replace(kallsyms,
		"ffffffff81002000 R sys_call_table", "ffffffff81002800 R sys_call_table", 1)))
	if err != nil {
		t.Fatal(err)
	}
	h.deps.Symbols = syms
	report := h.run(t)

	got := ofKind(report, model.DispatchTableMismatch)
	if len(got) != 1 || got[0].Severity != model.Warning {
		t.Fatalf("DispatchTableMismatch = %v, want one warning", got)
	}
}

func TestRunHiddenProcess(t *testing.T) {
	h := newHost(t)
	h.deps.Prober = fakeProber{recs: []model.ProcessRecord{{PID: 1, Name: "init"}, {PID: 42, Name: "sshd"}, {PID: 99, Name: "evil"}}}
	report := h.run(t)

	got := ofKind(report, model.HiddenProcess)
	if len(got) != 1 || got[0].Severity != model.Critical || !strings.Contains(got[0].Detail, "pid 99") {
		t.Fatalf("HiddenProcess = %v, want one critical for pid 99", got)
	}
}

func TestRunProcessRace(t *testing.T) {
	h := newHost(t)
	// 42 只出现在一次遍历中 (探测之前退出)，不算异常
	calls := 0
	h.deps.Lister = listerFunc(func() []model.ProcessRecord {
		calls++
		if calls == 1 {
			return []model.ProcessRecord{{PID: 1, Name: "init"}, {PID: 42, Name: "sshd"}}
		}
		return []model.ProcessRecord{{PID: 1, Name: "init"}}
	})
	h.deps.Prober = fakeProber{recs: []model.ProcessRecord{{PID: 1, Name: "init"}}}
	report := h.run(t)

	if got := ofKind(report, model.HiddenProcess); len(got) != 0 {
		t.Fatalf("HiddenProcess = %v, want none", got)
	}
}

type listerFunc func() []model.ProcessRecord

func (f listerFunc) Processes() iter.Seq[model.ProcessRecord] { return slices.Values(f()) }

func TestRunMaskedPID(t *testing.T) {
	h := newHost(t)
	mounts := filepath.Join(t.TempDir(), "mounts")
	writeFile(t, mounts, "proc /proc proc rw,nosuid,hidepid=2 0 0\ntmpfs /proc/4242 tmpfs rw 0 0\n")
	h.cfg.MountsPath = mounts
	report := h.run(t)

	got := ofKind(report, model.HiddenProcess)
	if len(got) != 1 || got[0].Severity != model.Critical || !strings.Contains(got[0].Detail, "pid 4242") {
		t.Fatalf("HiddenProcess = %v, want one critical for pid 4242", got)
	}
}

func TestRunHiddenFile(t *testing.T) {
	h := newHost(t)
	h.stat["/etc/ld.so.preload"] = FileInfo{Inode: 99, Type: model.File, Nlink: 1}
	report := h.run(t)

	got := ofKind(report, model.HiddenFile)
	if len(got) != 1 || got[0].Severity != model.Critical || !strings.Contains(got[0].Detail, "/etc/ld.so.preload") {
		t.Fatalf("HiddenFile = %v, want one critical for ld.so.preload", got)
	}
}

func TestRunHiddenFileFromBaseline(t *testing.T) {
	h := newHost(t)
	h.deps.Baseline = memBaseline{"/etc": {"passwd", "hosts", "ssl", ".backdoor"}}
	h.stat["/etc/.backdoor"] = FileInfo{Inode: 77, Type: model.File, Nlink: 1}
	report := h.run(t)

	got := ofKind(report, model.HiddenFile)
	if len(got) != 1 || !strings.Contains(got[0].Detail, ".backdoor") {
		t.Fatalf("HiddenFile = %v, want one for .backdoor", got)
	}
}

func TestRunHiddenSubdirectoryLinkCount(t *testing.T) {
	h := newHost(t)
	h.stat["/etc"] = FileInfo{Inode: 2, Type: model.Dir, Nlink: 4}
	report := h.run(t)

	got := ofKind(report, model.HiddenFile)
	if len(got) != 1 || got[0].Severity != model.Warning || !strings.Contains(got[0].Detail, "link count 4") {
		t.Fatalf("HiddenFile = %v, want one link count warning", got)
	}
}

func TestRunMasqueradeHiddenFile(t *testing.T) {
	h := newHost(t)
	dir := t.TempDir()
	elf := make([]byte, 64)
	copy(elf, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), elf, 0o644); err != nil {
		t.Fatal(err)
	}
	h.cfg.Dirs = []string{dir}
	h.listing[dir] = nil
	h.stat[dir] = FileInfo{Inode: 3, Type: model.Dir, Nlink: 2}
	h.stat[filepath.Join(dir, "notes.txt")] = FileInfo{Inode: 5, Type: model.File, Nlink: 1}
	h.cfg.WatchList = map[string][]string{dir: {"notes.txt"}}
	report := h.run(t)

	if got := ofKind(report, model.HiddenFile); len(got) != 1 {
		t.Fatalf("HiddenFile = %v, want one", got)
	}
	got := ofKind(report, model.MasqueradeFile)
	if len(got) != 1 || got[0].Severity != model.Critical {
		t.Fatalf("MasqueradeFile = %v, want one critical", got)
	}
}

func TestRunHiddenModule(t *testing.T) {
	h := newHost(t)
	writeFile(t, filepath.Join(h.cfg.Modules.SysModule, "diamorphine", "initstate"), "live\n")
	h.cfg.BadModules = []string{"diamorphine", "reptile"}
	report := h.run(t)

	got := ofKind(report, model.HiddenModule)
	if len(got) != 2 {
		t.Fatalf("HiddenModule = %v, want hidden + known bad", got)
	}
	for _, a := range got {
		if a.Severity != model.Critical || !strings.Contains(a.Detail, "diamorphine") {
			t.Errorf("unexpected %v", a)
		}
	}
}

func TestRunDirectoryFailureIsIsolated(t *testing.T) {
	h := newHost(t)
	h.cfg.Dirs = []string{"/missing", "/etc"}
	h.stat["/etc/ld.so.preload"] = FileInfo{Inode: 99, Type: model.File, Nlink: 1}
	report := h.run(t)

	inc := ofKind(report, model.CheckIncomplete)
	if len(inc) != 1 || inc[0].Severity != model.Warning || !strings.Contains(inc[0].Detail, "/missing") {
		t.Fatalf("CheckIncomplete = %v, want one for /missing", inc)
	}
	if got := ofKind(report, model.HiddenFile); len(got) != 1 {
		t.Fatalf("/etc not checked after /missing failed: %v", got)
	}
}

func TestRunMissingPrimitives(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.MountsPath = ""
	cfg.Modules = analysis.ModuleViews{SysModule: filepath.Join(dir, "sys"), ProcModules: filepath.Join(dir, "modules")}
	cfg.TaintedPath = ""
	cfg.KprobesList = ""

	report, err := New(cfg, &Deps{}, zap.NewNop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	inc := ofKind(report, model.CheckIncomplete)
	if len(inc) != 6 || report.Summary.Warnings != 6 || report.Summary.Criticals != 0 {
		t.Fatalf("CheckIncomplete = %v, want one per check", inc)
	}
	if report.Summary.Status != 0 {
		t.Errorf("status = %d, check failures must not abort", report.Summary.Status)
	}
}

func TestRunProbeFailure(t *testing.T) {
	h := newHost(t)
	h.deps.Prober = fakeProber{err: errors.New("pid_max unreadable")}
	report := h.run(t)

	inc := ofKind(report, model.CheckIncomplete)
	if len(inc) != 1 || !strings.Contains(inc[0].Detail, "processes") {
		t.Fatalf("CheckIncomplete = %v, want one for processes", inc)
	}
}

func TestRunResourceExhaustionAborts(t *testing.T) {
	if strconv.IntSize < 64 {
		t.Skip("needs a 64-bit int to request an impossible buffer")
	}
	h := newHost(t)
	h.cfg.ChunkSize = math.MaxInt - 7
	h.deps.Prober = fakeProber{recs: []model.ProcessRecord{{PID: 99, Name: "evil"}}}

	report, err := New(h.cfg, h.deps, zap.NewNop()).Run(context.Background())
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
	if report.Summary.Status == 0 {
		t.Error("aborted scan reported status 0")
	}
	// 中止之后的检查不再运行
	if got := ofKind(report, model.HiddenProcess); len(got) != 0 {
		t.Errorf("process check ran after abort: %v", got)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHost(t)
	h.deps.Prober = fakeProber{recs: []model.ProcessRecord{{PID: 1, Name: "init"}, {PID: 42, Name: "sshd"}, {PID: 99, Name: "evil"}}}
	h.stat["/etc/ld.so.preload"] = FileInfo{Inode: 99, Type: model.File, Nlink: 1}

	first := h.run(t)
	second := h.run(t)
	if !slices.Equal(first.Anomalies, second.Anomalies) {
		t.Fatalf("runs differ:\n%v\n%v", first.Anomalies, second.Anomalies)
	}
	if first.Summary != second.Summary {
		t.Errorf("summaries differ: %+v vs %+v", first.Summary, second.Summary)
	}
	if first.SessionID == second.SessionID {
		t.Error("session id reused")
	}
}

func TestHooksSyscall(t *testing.T) {
	tests := []struct {
		probe string
		want  bool
	}{
		{"ffffffff81234560  k  __x64_sys_open+0x0", true},
		{"ffffffff81234570  k  ksys_close+0x4", true},
		{"ffffffff81234580  r  do_exit+0x0", false},
	}
	for _, tt := range tests {
		if got := hooksSyscall(tt.probe); got != tt.want {
			t.Errorf("hooksSyscall(%q) = %v, want %v", tt.probe, got, tt.want)
		}
	}
}

// cancelImage 搜索越过 after 之后取消上层 context，模拟扫描中途收到 SIGINT
type cancelImage struct {
	memimage.Image
	after  uint64
	cancel context.CancelFunc
}

func (c cancelImage) ReadAt(p []byte, addr uint64) (int, error) {
	if addr >= c.after {
		c.cancel()
	}
	return c.Image.ReadAt(p, addr)
}

func TestRunTableSearchInterrupted(t *testing.T) {
	h := newHost(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.deps.Image = cancelImage{Image: h.deps.Image, after: kbase + tableOff + 0x100, cancel: cancel}
	h.cfg.ScanStart = kbase + tableOff + 0x100
	h.cfg.ScanEnd = kbase + imageSize
	h.cfg.ChunkSize = 8

	report, err := New(h.cfg, h.deps, zap.NewNop()).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := ofKind(report, model.TableNotFound)
	if len(got) != 1 || !strings.Contains(got[0].Detail, context.Canceled.Error()) {
		t.Fatalf("TableNotFound = %v, want one naming the cancellation", got)
	}
}

func TestRunLogsLookupFailures(t *testing.T) {
	h := newHost(t)
	h.deps.Stat = func(p string) (FileInfo, error) {
		if p == "/etc/ld.so.preload" {
			return FileInfo{}, &fs.PathError{Op: "lstat", Path: p, Err: syscall.EACCES}
		}
		return h.stat.lstat(p)
	}
	h.cfg.KprobesList = filepath.Join(t.TempDir(), "missing-kprobes")

	core, logs := observer.New(zap.WarnLevel)
	if _, err := New(h.cfg, h.deps, zap.New(core)).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, msg := range []string{"lstat failed", "kprobe list unavailable"} {
		if logs.FilterMessageSnippet(msg).Len() != 1 {
			t.Errorf("no warn line %q", msg)
		}
	}
}

func TestRunInspectFailureIsLogged(t *testing.T) {
	h := newHost(t)
	dir := t.TempDir()
	h.cfg.Dirs = []string{dir}
	h.listing[dir] = nil
	h.stat[dir] = FileInfo{Inode: 3, Type: model.Dir, Nlink: 2}
	// lstat 看得到，但磁盘上没有，类型检查打不开
	h.stat[filepath.Join(dir, "ghost")] = FileInfo{Inode: 6, Type: model.File, Nlink: 1}
	h.cfg.WatchList = map[string][]string{dir: {"ghost"}}

	core, logs := observer.New(zap.WarnLevel)
	if _, err := New(h.cfg, h.deps, zap.New(core)).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if logs.FilterMessageSnippet("inspect failed").Len() != 1 {
		t.Error("inspect failure not logged at warn")
	}
}
