package ksyms

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// 常用符号的候选名，不同内核版本命名不同，按顺序取第一个存在的
var (
	CloseSyscall = []string{"__x64_sys_close", "ksys_close", "__se_sys_close", "sys_close"}
	OpenSyscall  = []string{"__x64_sys_open", "ksys_open", "__se_sys_open", "sys_open"}
	DivideError  = []string{"asm_exc_divide_error", "divide_error"}
	IDTTable     = []string{"idt_table"}
	TextStart    = []string{"_text", "startup_64"}
	TextEnd      = []string{"_etext"}
	KernelEnd    = []string{"__end_rodata", "_end"}
	SysCallTable = []string{"sys_call_table"}
)

type Symbol struct {
	Address uint64
	Type    string
	Name    string
	Module  string
}

// Table /proc/kallsyms 的解析结果，只保留第一次出现的同名符号
type Table struct {
	byName map[string]Symbol
}

// Load 读取 kallsyms 文件
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse 解析 "ffffffff81000000 T _text [module]" 格式的每一行。
// 地址为 0 的行 (kptr_restrict 生效) 视为不存在。
func Parse(r io.Reader) (*Table, error) {
	t := &Table{byName: make(map[string]Symbol)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 64)
		if err != nil || addr == 0 {
			continue
		}
		sym := Symbol{Address: addr, Type: fields[1], Name: fields[2]}
		if len(fields) > 3 {
			sym.Module = strings.Trim(fields[3], "[]")
		}
		if _, ok := t.byName[sym.Name]; !ok {
			t.byName[sym.Name] = sym
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Lookup 返回第一个存在的符号
func (t *Table) Lookup(names ...string) (Symbol, bool) {
	for _, name := range names {
		if sym, ok := t.byName[name]; ok {
			return sym, true
		}
	}
	return Symbol{}, false
}

// Address 同 Lookup，找不到时返回带候选名的错误
func (t *Table) Address(names ...string) (uint64, error) {
	sym, ok := t.Lookup(names...)
	if !ok {
		return 0, fmt.Errorf("kernel symbol not found: %s", strings.Join(names, "|"))
	}
	return sym.Address, nil
}

// Len 有效符号个数，为 0 通常说明 kptr_restrict 屏蔽了地址
func (t *Table) Len() int {
	return len(t.byName)
}

// Modules 出现在 kallsyms 中的模块名
func (t *Table) Modules() map[string]bool {
	mods := make(map[string]bool)
	for _, sym := range t.byName {
		if sym.Module != "" {
			mods[sym.Module] = true
		}
	}
	return mods
}
