package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Hara602/rootkitSentry/internal/model"
	"github.com/h2non/filetype"
)

type Risk string

const (
	RiskSafe   Risk = "SAFE"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

// Result 检测结果
type Result struct {
	IsMasquerade bool   // 是否是伪装文件
	RealExt      string // 真实的类型后缀 (根据文件头)
	DeclaredExt  string // 声明的后缀 (文件名)
	RiskLevel    Risk
	Message      string
}

// TypeInspector 文件类型检查器
type TypeInspector struct {
	aliasMap map[string]map[string]bool
	mu       sync.RWMutex
}

func NewTypeInspector() *TypeInspector {
	inspector := &TypeInspector{
		aliasMap: make(map[string]map[string]bool),
	}
	inspector.initRules()
	return inspector
}

// initRules 哪些"表里不一"是合法的
func (t *TypeInspector) initRules() {
	for _, rule := range [][]string{
		{"zip", "jar", "war", "whl", "apk", "xpi"},
		{"gz", "gzip", "tgz", "z"},
		{"xz", "txz"},
		{"bz2", "tbz", "tbz2"},
		{"tar"},
		{"7z"},
		{"zst", "zstd"},
		{"sqlite", "db", "sqlite3"},
		{"xml", "svg", "html", "htm", "plist", "conf", "config", "policy"},
		{"png"},
		{"jpg", "jpeg"},
		{"gif"},
		{"pdf"},
		// 共享库和内核模块本身就是 ELF
		{"elf", "so", "ko", "bin", "o"},
	} {
		t.Allow(rule[0], rule[1:]...)
	}
}

// Allow 允许真实类型 realType 使用这些后缀
func (t *TypeInspector) Allow(realType string, allowedExts ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.aliasMap[realType]; !ok {
		t.aliasMap[realType] = make(map[string]bool)
	}
	t.aliasMap[realType][realType] = true
	for _, ext := range allowedExts {
		t.aliasMap[realType][ext] = true
	}
}

// Inspect 根据文件头判断文件是否伪装成其他类型
func (t *TypeInspector) Inspect(filePath string) (*Result, error) {
	declaredExt := strings.ToLower(strings.TrimPrefix(filepath.Ext(filePath), "."))

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file failed: %w", err)
	}
	defer file.Close()

	// 262 bytes 是 filetype 库建议的文件头长度
	head := make([]byte, 262)
	n, err := file.Read(head)
	if err != nil && n == 0 {
		return &Result{RiskLevel: RiskSafe, DeclaredExt: declaredExt, Message: "empty file"}, nil
	}

	kind, _ := filetype.Match(head[:n])
	// 纯文本 (配置、脚本) 会被识别为 Unknown，默认信任
	if kind == filetype.Unknown {
		return &Result{RealExt: "unknown", DeclaredExt: declaredExt, RiskLevel: RiskSafe, Message: "no binary signature"}, nil
	}
	realExt := kind.Extension

	if realExt == declaredExt {
		return &Result{RealExt: realExt, DeclaredExt: declaredExt, RiskLevel: RiskSafe}, nil
	}

	t.mu.RLock()
	allowed := t.aliasMap[realExt][declaredExt]
	t.mu.RUnlock()
	if allowed {
		return &Result{
			RealExt:     realExt,
			DeclaredExt: declaredExt,
			RiskLevel:   RiskSafe,
			Message:     fmt.Sprintf("allowed alias: %s is compatible with %s", declaredExt, realExt),
		}, nil
	}

	risk := RiskMedium
	if isExecutable(realExt) {
		// 可执行文件伪装成其他格式
		risk = RiskHigh
	}
	declared := declaredExt
	if declared == "" {
		declared = "<none>"
	}
	return &Result{
		IsMasquerade: true,
		RealExt:      realExt,
		DeclaredExt:  declaredExt,
		RiskLevel:    risk,
		Message:      fmt.Sprintf("type mismatch: header is '%s' but extension is '%s'", realExt, declared),
	}, nil
}

// Anomaly 伪装文件转换成异常记录，不是伪装时返回 nil
func (r *Result) Anomaly(path string) *model.Anomaly {
	if r == nil || !r.IsMasquerade {
		return nil
	}
	sev := model.Warning
	if r.RiskLevel == RiskHigh {
		sev = model.Critical
	}
	return &model.Anomaly{
		Kind:     model.MasqueradeFile,
		Severity: sev,
		Detail:   fmt.Sprintf("%s: %s", path, r.Message),
	}
}

func isExecutable(ext string) bool {
	switch ext {
	case "elf", "exe", "dll", "macho":
		return true
	}
	return false
}
