package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/Hara602/rootkitSentry/internal/analysis"
	"github.com/Hara602/rootkitSentry/internal/idt"
	"github.com/Hara602/rootkitSentry/internal/ksyms"
	"github.com/Hara602/rootkitSentry/internal/locator"
	"github.com/Hara602/rootkitSentry/internal/model"
	"github.com/Hara602/rootkitSentry/internal/proc"
	"github.com/Hara602/rootkitSentry/internal/sysutil"
	"github.com/Hara602/rootkitSentry/internal/xref"
	"go.uber.org/zap"
)

// ---------------------------------------------------------
// 1. IDT 0 号向量
// ---------------------------------------------------------

func (s *session) checkIDT(ctx context.Context) error {
	d := s.deps
	if d.Image == nil || d.IDTBase == nil || d.Symbols == nil {
		return missing("memory image, IDT base or kernel symbols")
	}
	expected, err := d.Symbols.Address(ksyms.DivideError...)
	if err != nil {
		return fmt.Errorf("divide error handler: %w", err)
	}
	kernelStart, _ := d.Symbols.Address(ksyms.TextStart...)

	in := &idt.Inspector{
		Base:        d.IDTBase,
		Image:       d.Image,
		Expected:    expected,
		Long:        s.cfg.LongGates,
		KernelStart: kernelStart,
	}
	res, err := in.Check(ctx)
	if err != nil {
		return err
	}
	s.log.Debug("IDT vector 0",
		zap.String("base", hex(res.Base)),
		zap.String("handler", hex(res.Entry.HandlerAddress)),
		zap.Uint16("selector", res.Entry.Selector),
		zap.Uint8("type_attr", res.Entry.TypeAttributes))

	if res.Inconsistent != nil {
		s.col.Add(model.Anomaly{
			Kind:     model.IdtMismatch,
			Severity: model.Warning,
			Detail:   fmt.Sprintf("IDT vector %d decodes inconsistently: %v", idt.DivideErrorVector, res.Inconsistent),
		})
	}
	if a := xref.CompareAddress(model.IdtMismatch, "IDT vector 0 handler", res.Expected, res.Entry.HandlerAddress); a != nil {
		s.col.Add(*a)
	}
	return nil
}

// ---------------------------------------------------------
// 2. 系统调用表
// ---------------------------------------------------------

func (s *session) checkDispatchTable(ctx context.Context) error {
	d := s.deps
	if d.Image == nil || d.Symbols == nil {
		return missing("memory image or kernel symbols")
	}
	closeRef, err := d.Symbols.Address(ksyms.CloseSyscall...)
	if err != nil {
		return fmt.Errorf("close reference: %w", err)
	}
	openRef, err := d.Symbols.Address(ksyms.OpenSyscall...)
	if err != nil {
		return fmt.Errorf("open reference: %w", err)
	}

	q := locator.Query{
		Start:      s.cfg.ScanStart,
		End:        s.cfg.ScanEnd,
		Index:      s.cfg.CloseNR,
		Reference:  closeRef,
		EntryCount: s.cfg.TableEntries,
	}
	if q.Degraded() {
		q.Start, q.End = s.kernelBounds()
	}

	lctx := ctx
	if s.cfg.LocateTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, s.cfg.LocateTimeout)
		defer cancel()
	}
	table, err := locator.New(s.log, s.cfg.ChunkSize).Locate(lctx, d.Image, q)
	switch {
	case errors.Is(err, locator.ErrDeadline):
		s.col.Add(model.Anomaly{
			Kind:     model.TableNotFound,
			Severity: model.Warning,
			Detail:   fmt.Sprintf("system call table search stopped: %v", err),
		})
		return nil
	case err != nil:
		return err
	case table == nil:
		s.col.Add(model.Anomaly{
			Kind:     model.TableNotFound,
			Severity: model.Warning,
			Detail:   fmt.Sprintf("no word equal to close reference %s in [%s, %s)", hex(closeRef), hex(q.Start), hex(q.End)),
		})
		return nil
	}
	s.table = table
	s.log.Info("system call table located", zap.String("base", hex(table.BaseAddress)), zap.Bool("degraded", table.Degraded))

	if sym, ok := d.Symbols.Lookup(ksyms.SysCallTable...); ok && sym.Address != table.BaseAddress {
		s.col.Add(model.Anomaly{
			Kind:     model.DispatchTableMismatch,
			Severity: model.Warning,
			Detail:   fmt.Sprintf("located table at %s but %s is at %s", hex(table.BaseAddress), sym.Name, hex(sym.Address)),
		})
	}

	if s.cfg.OpenNR < 0 || s.cfg.OpenNR >= table.EntryCount {
		return fmt.Errorf("open syscall number %d outside table of %d entries", s.cfg.OpenNR, table.EntryCount)
	}
	got, err := locator.ReadEntry(d.Image, *table, s.cfg.OpenNR)
	if err != nil {
		return fmt.Errorf("read table[%d]: %w", s.cfg.OpenNR, err)
	}
	label := fmt.Sprintf("sys_call_table[%d] (open)", s.cfg.OpenNR)
	if a := xref.CompareAddress(model.DispatchTableMismatch, label, openRef, got); a != nil {
		s.col.Add(*a)
	}
	return nil
}

// kernelBounds 内核代码段加只读数据段，符号缺失时返回 (0, 0)
func (s *session) kernelBounds() (uint64, uint64) {
	start, err := s.deps.Symbols.Address(ksyms.TextStart...)
	if err != nil {
		return 0, 0
	}
	end, err := s.deps.Symbols.Address(ksyms.KernelEnd...)
	if err != nil || end <= start {
		return 0, 0
	}
	return start, end
}

// ---------------------------------------------------------
// 3. 隐藏进程
// ---------------------------------------------------------

func (s *session) checkProcesses(ctx context.Context) error {
	d := s.deps
	if d.Lister == nil || d.Prober == nil {
		return missing("process lister or pid prober")
	}

	// 两次遍历夹住探测，缩小进程启动/退出造成的误报窗口
	before := proc.Collect(d.Lister)
	observed, err := d.Prober.Probe(ctx)
	if err != nil {
		return fmt.Errorf("pid probe: %w", err)
	}
	after := proc.Collect(d.Lister)
	if len(before) == 0 && len(after) == 0 {
		return fmt.Errorf("process list under %s is empty", s.cfg.ProcRoot)
	}
	s.log.Debug("process views", zap.Int("listed_before", len(before)), zap.Int("listed_after", len(after)), zap.Int("probed", len(observed)))

	// 存活但两次都没列出 -> Critical；两次都列出却没有响应探测 -> Warning
	union := append(slices.Clip(before), after...)
	for _, a := range xref.DiffProcesses(union, observed) {
		if a.Severity == model.Critical {
			s.col.Add(a)
		}
	}
	for _, a := range xref.DiffProcesses(intersect(before, after), observed) {
		if a.Severity == model.Warning {
			s.col.Add(a)
		}
	}

	s.checkProcMounts()
	return nil
}

func intersect(a, b []model.ProcessRecord) []model.ProcessRecord {
	inB := make(map[int64]bool, len(b))
	for _, r := range b {
		inB[r.PID] = true
	}
	var out []model.ProcessRecord
	for _, r := range a {
		if inB[r.PID] {
			out = append(out, r)
		}
	}
	return out
}

// checkProcMounts hidepid 只记录日志；挂载在 /proc/<pid> 上的 bind mount 是隐藏进程的常见手法
func (s *session) checkProcMounts() {
	if s.cfg.MountsPath == "" {
		return
	}
	mounts, err := sysutil.ReadMounts(s.cfg.MountsPath)
	if err != nil {
		s.log.Warn("cannot read mount table", zap.String("path", s.cfg.MountsPath), zap.Error(err))
		return
	}
	if v := sysutil.HidePID(mounts, s.cfg.ProcRoot); v != "" && v != "0" && v != "off" {
		s.log.Warn("procfs mounted with hidepid, process list may be incomplete for this user",
			zap.String("root", s.cfg.ProcRoot), zap.String("hidepid", v))
	}
	for _, m := range sysutil.MaskedPIDs(mounts, s.cfg.ProcRoot) {
		s.col.Add(model.Anomaly{
			Kind:     model.HiddenProcess,
			Severity: model.Critical,
			Detail:   fmt.Sprintf("pid %d: %s/%d is covered by a %s mount from %s", m.PID, s.cfg.ProcRoot, m.PID, m.FSType, m.Source),
		})
	}
}

// ---------------------------------------------------------
// 4. 隐藏文件
// ---------------------------------------------------------

func (s *session) checkFiles(ctx context.Context) error {
	d := s.deps
	if d.Walker == nil || d.Stat == nil {
		return missing("directory walker or lstat")
	}
	for _, dir := range s.cfg.Dirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.scanDir(ctx, dir); err != nil {
			// 单个目录失败不影响其他目录
			s.incomplete("files "+dir, err)
		}
	}
	return nil
}

func (s *session) scanDir(ctx context.Context, dir string) error {
	d := s.deps
	trusted, err := d.Walker.List(dir)
	if err != nil {
		return err
	}

	var known []string
	if d.Baseline != nil {
		if known, err = d.Baseline.Names(ctx, dir); err != nil {
			s.log.Warn("baseline lookup failed", zap.String("dir", dir), zap.Error(err))
		}
	}

	candidates := make([]string, 0, len(trusted)+len(known))
	for _, e := range trusted {
		candidates = append(candidates, e.Name)
	}
	candidates = append(candidates, known...)
	candidates = append(candidates, s.cfg.WatchList[dir]...)
	slices.Sort(candidates)
	candidates = slices.Compact(candidates)

	observed := make([]model.DirEntry, 0, len(candidates))
	subdirs := 0
	for _, name := range candidates {
		if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
			continue
		}
		fi, err := d.Stat(path.Join(dir, name))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.log.Warn("lstat failed", zap.String("path", path.Join(dir, name)), zap.Error(err))
			}
			continue
		}
		if fi.Type == model.Dir {
			subdirs++
		}
		observed = append(observed, model.DirEntry{Name: name, Inode: fi.Inode, Type: fi.Type})
	}

	found := xref.DiffEntries(dir, trusted, observed)
	s.col.Add(found...)
	s.log.Debug("directory views", zap.String("dir", dir), zap.Int("listed", len(trusted)), zap.Int("confirmed", len(observed)), zap.Int("anomalies", len(found)))

	// 子目录的 ".." 会增加父目录的链接数，链接数多于可见子目录说明有目录被藏起来。
	// btrfs 等文件系统的目录链接数恒为 1，跳过
	if fi, err := d.Stat(dir); err == nil && fi.Nlink >= 2 && fi.Nlink > uint64(2+subdirs) {
		s.col.Add(model.Anomaly{
			Kind:     model.HiddenFile,
			Severity: model.Warning,
			Detail:   fmt.Sprintf("%s has link count %d but only %d subdirectories are visible", dir, fi.Nlink, subdirs),
		})
	}

	// 被隐藏的和基线中没有的普通文件留给类型检查
	listed := make(map[string]bool, len(trusted))
	for _, e := range trusted {
		listed[e.Name] = true
	}
	for _, e := range observed {
		if e.Type != model.File {
			continue
		}
		if !listed[e.Name] || (d.Baseline != nil && !slices.Contains(known, e.Name)) {
			s.suspects = append(s.suspects, path.Join(dir, e.Name))
		}
	}

	if d.Baseline != nil {
		if err := d.Baseline.Record(ctx, dir, observed); err != nil {
			s.log.Warn("baseline update failed", zap.String("dir", dir), zap.Error(err))
		}
	}
	return nil
}

// ---------------------------------------------------------
// 5. 内核模块
// ---------------------------------------------------------

func (s *session) checkModules(ctx context.Context) error {
	views := s.cfg.Modules
	trusted, err := views.ProcModuleNames()
	if err != nil {
		return fmt.Errorf("read %s: %w", views.ProcModules, err)
	}
	observed, err := views.SysModuleNames()
	if err != nil {
		return fmt.Errorf("read %s: %w", views.SysModule, err)
	}
	s.col.Add(xref.DiffModules(trusted, observed)...)

	for _, bad := range s.cfg.BadModules {
		if slices.Contains(trusted, bad) || slices.Contains(observed, bad) {
			s.col.Add(model.Anomaly{
				Kind:     model.HiddenModule,
				Severity: model.Critical,
				Detail:   fmt.Sprintf("known rootkit module %s is loaded", bad),
			})
		}
	}

	if s.cfg.TaintedPath != "" {
		if value, reasons, err := analysis.Tainted(s.cfg.TaintedPath); err != nil {
			s.log.Debug("taint state unavailable", zap.Error(err))
		} else if value != 0 {
			s.log.Warn("kernel is tainted", zap.Uint64("tainted", value), zap.Strings("reasons", reasons))
		}
	}

	if s.cfg.KprobesList != "" {
		probes, err := analysis.Kprobes(s.cfg.KprobesList)
		if err != nil {
			s.log.Warn("kprobe list unavailable (debugfs not mounted?)", zap.Error(err))
		}
		for _, p := range probes {
			if hooksSyscall(p) {
				s.log.Warn("kprobe on system call path", zap.String("probe", p))
			} else {
				s.log.Info("kprobe", zap.String("probe", p))
			}
		}
	}
	return nil
}

func hooksSyscall(probe string) bool {
	for _, name := range slices.Concat(ksyms.OpenSyscall, ksyms.CloseSyscall) {
		if strings.Contains(probe, name) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------
// 6. 伪装文件
// ---------------------------------------------------------

func (s *session) checkMasquerade(ctx context.Context) error {
	if !s.cfg.InspectTypes {
		s.log.Debug("file type inspection disabled")
		return nil
	}
	if s.deps.Inspector == nil {
		return missing("file type inspector")
	}
	for _, p := range s.suspects {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.deps.Inspector.Inspect(p)
		if err != nil {
			s.log.Warn("inspect failed", zap.String("path", p), zap.Error(err))
			continue
		}
		if a := res.Anomaly(p); a != nil {
			s.col.Add(*a)
		}
	}
	return nil
}

func hex(v uint64) string { return fmt.Sprintf("0x%016x", v) }
