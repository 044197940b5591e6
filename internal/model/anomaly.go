package model

import "fmt"

// Kind 异常类型
type Kind int

const (
	IdtMismatch Kind = iota
	DispatchTableMismatch
	HiddenProcess
	HiddenFile
	TableNotFound
	HiddenModule
	MasqueradeFile
	CheckIncomplete
)

func (k Kind) String() string {
	switch k {
	case IdtMismatch:
		return "IDT_MISMATCH"
	case DispatchTableMismatch:
		return "DISPATCH_TABLE_MISMATCH"
	case HiddenProcess:
		return "HIDDEN_PROCESS"
	case HiddenFile:
		return "HIDDEN_FILE"
	case TableNotFound:
		return "TABLE_NOT_FOUND"
	case HiddenModule:
		return "HIDDEN_MODULE"
	case MasqueradeFile:
		return "MASQUERADE_FILE"
	case CheckIncomplete:
		return "CHECK_INCOMPLETE"
	}
	return fmt.Sprintf("KIND(%d)", int(k))
}

type Severity int

const (
	Warning Severity = iota
	Critical
)

func (s Severity) String() string {
	if s == Critical {
		return "CRITICAL"
	}
	return "WARNING"
}

// Anomaly 一条检测结果，Detail 必须能复现比较过程 (期望值/观测值, 或 pid/路径)
type Anomaly struct {
	Kind     Kind
	Detail   string
	Severity Severity
}

func (a Anomaly) String() string {
	return fmt.Sprintf("[%s] %s: %s", a.Severity, a.Kind, a.Detail)
}

// Summary 扫描汇总
type Summary struct {
	Total     int
	Warnings  int
	Criticals int
	// Status 非 0 表示扫描被中止 (资源耗尽)
	Status int
}
