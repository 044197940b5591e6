package analysis

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// taint 位含义，来自 Documentation/admin-guide/tainted-kernels.rst
var taintFlags = map[int]string{
	0:  "P: proprietary module was loaded",
	1:  "F: module was force loaded",
	2:  "S: kernel running on an out-of-spec system",
	3:  "R: module was force unloaded",
	4:  "M: processor reported a machine check exception",
	5:  "B: bad page referenced or unexpected page flags",
	6:  "U: taint requested by userspace",
	7:  "D: kernel died recently (OOPS or BUG)",
	8:  "A: ACPI table overridden by user",
	9:  "W: kernel issued warning",
	10: "C: staging driver was loaded",
	11: "I: workaround for platform firmware bug applied",
	12: "O: externally-built (out-of-tree) module was loaded",
	13: "E: unsigned module was loaded",
	14: "L: soft lockup occurred",
	15: "K: kernel has been live patched",
	16: "X: auxiliary taint, distro-defined",
	17: "T: kernel built with the struct randomization plugin",
	18: "N: an in-kernel test has been run",
}

// ModuleViews 内核模块的两个视角
type ModuleViews struct {
	// SysModule /sys/module，只统计有 initstate 文件的可加载模块
	SysModule string
	// ProcModules /proc/modules
	ProcModules string
}

func DefaultModuleViews() ModuleViews {
	return ModuleViews{SysModule: "/sys/module", ProcModules: "/proc/modules"}
}

// ProcModuleNames /proc/modules 中的模块名
func (v ModuleViews) ProcModuleNames() ([]string, error) {
	f, err := os.Open(v.ProcModules)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		names = append(names, fields[0])
	}
	return names, scanner.Err()
}

// SysModuleNames /sys/module 下的可加载模块 (内建模块没有 initstate)
func (v ModuleViews) SysModuleNames() ([]string, error) {
	files, err := os.ReadDir(v.SysModule)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range files {
		state, err := os.ReadFile(filepath.Join(v.SysModule, f.Name(), "initstate"))
		if err != nil {
			continue
		}
		if s := string(bytes.TrimSpace(state)); s == "live" || s == "coming" || s == "going" {
			names = append(names, f.Name())
		}
	}
	return names, nil
}

// Tainted 读取 /proc/sys/kernel/tainted 并解释每一位
func Tainted(path string) (uint64, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, err
	}
	value, err := strconv.ParseUint(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	var reasons []string
	for bit := 0; bit < 64; bit++ {
		if value&(1<<bit) == 0 {
			continue
		}
		reason, ok := taintFlags[bit]
		if !ok {
			reason = fmt.Sprintf("bit %d", bit)
		}
		reasons = append(reasons, reason)
	}
	return value, reasons, nil
}

// Kprobes 读取 debugfs 中已注册的 kprobe 列表，每行一个
func Kprobes(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var probes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			probes = append(probes, line)
		}
	}
	return probes, scanner.Err()
}
