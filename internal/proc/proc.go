package proc

import (
	"context"
	"iter"

	"github.com/Hara602/rootkitSentry/internal/model"
)

// DefaultRoot procfs 挂载点
const DefaultRoot = "/proc"

// Lister 调度器视角的进程列表 (/proc 目录遍历)。
// 返回的序列是惰性的、有限的，进程列表变化后不能重新开始。
type Lister interface {
	Processes() iter.Seq[model.ProcessRecord]
}

// Prober 独立于目录遍历的第二个视角：逐个探测 pid 是否存在
type Prober interface {
	Probe(ctx context.Context) ([]model.ProcessRecord, error)
}

// Collect 把序列收集成切片
func Collect(l Lister) []model.ProcessRecord {
	var out []model.ProcessRecord
	for rec := range l.Processes() {
		out = append(out, rec)
	}
	return out
}

// BoundName 截断到 comm 的长度 (TASK_COMM_LEN - 1)
func BoundName(name string) string {
	if len(name) > model.CommLen-1 {
		return name[:model.CommLen-1]
	}
	return name
}
