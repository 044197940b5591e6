// Package xref 比较两个独立获取的视图并生成异常记录。
// 这里不做任何 I/O。
package xref

import (
	"cmp"
	"fmt"
	"path"
	"slices"

	"github.com/Hara602/rootkitSentry/internal/model"
)

// DiffProcesses 以 pid 为键比较两个进程视图：
// observed 有而 trusted 没有 -> Critical；trusted 有而 observed 没有 -> Warning
func DiffProcesses(trusted, observed []model.ProcessRecord) []model.Anomaly {
	onlyTrusted, onlyObserved := diff(trusted, observed, func(r model.ProcessRecord) int64 { return r.PID })

	out := make([]model.Anomaly, 0, len(onlyTrusted)+len(onlyObserved))
	for _, r := range onlyObserved {
		out = append(out, model.Anomaly{
			Kind:     model.HiddenProcess,
			Severity: model.Critical,
			Detail:   fmt.Sprintf("pid %d (%s) is alive but missing from the process list", r.PID, r.Name),
		})
	}
	for _, r := range onlyTrusted {
		out = append(out, model.Anomaly{
			Kind:     model.HiddenProcess,
			Severity: model.Warning,
			Detail:   fmt.Sprintf("pid %d (%s) is listed but did not answer the probe", r.PID, r.Name),
		})
	}
	return out
}

// DiffEntries 以文件名为键比较目录 dir 的两个视图，方向规则同 DiffProcesses
func DiffEntries(dir string, trusted, observed []model.DirEntry) []model.Anomaly {
	onlyTrusted, onlyObserved := diff(trusted, observed, func(e model.DirEntry) string { return e.Name })

	out := make([]model.Anomaly, 0, len(onlyTrusted)+len(onlyObserved))
	for _, e := range onlyObserved {
		out = append(out, model.Anomaly{
			Kind:     model.HiddenFile,
			Severity: model.Critical,
			Detail:   fmt.Sprintf("%s (inode %d, %s) exists but is missing from the directory listing", path.Join(dir, e.Name), e.Inode, e.Type),
		})
	}
	for _, e := range onlyTrusted {
		out = append(out, model.Anomaly{
			Kind:     model.HiddenFile,
			Severity: model.Warning,
			Detail:   fmt.Sprintf("%s (inode %d) is listed but cannot be looked up", path.Join(dir, e.Name), e.Inode),
		})
	}
	return out
}

// CompareAddress 比较表项/向量的期望地址与实际地址，一致时返回 nil
func CompareAddress(kind model.Kind, label string, expected, observed uint64) *model.Anomaly {
	if expected == observed {
		return nil
	}
	return &model.Anomaly{
		Kind:     kind,
		Severity: model.Critical,
		Detail:   fmt.Sprintf("%s: expected 0x%016x, observed 0x%016x", label, expected, observed),
	}
}

// diff 计算双向差集，结果按键排序，同一视图中重复的键只算一次
func diff[T any, K cmp.Ordered](a, b []T, key func(T) K) (onlyA, onlyB []T) {
	inA := make(map[K]bool, len(a))
	for _, x := range a {
		inA[key(x)] = true
	}
	inB := make(map[K]bool, len(b))
	for _, x := range b {
		inB[key(x)] = true
	}

	seen := make(map[K]bool)
	for _, x := range a {
		k := key(x)
		if !inB[k] && !seen[k] {
			seen[k] = true
			onlyA = append(onlyA, x)
		}
	}
	for _, x := range b {
		k := key(x)
		if !inA[k] && !seen[k] {
			seen[k] = true
			onlyB = append(onlyB, x)
		}
	}
	byKey := func(x, y T) int { return cmp.Compare(key(x), key(y)) }
	slices.SortFunc(onlyA, byKey)
	slices.SortFunc(onlyB, byKey)
	return onlyA, onlyB
}

// DiffModules 以模块名比较 /proc/modules (trusted) 与 /sys/module (observed)
func DiffModules(trusted, observed []string) []model.Anomaly {
	id := func(s string) string { return s }
	onlyTrusted, onlyObserved := diff(trusted, observed, id)

	out := make([]model.Anomaly, 0, len(onlyTrusted)+len(onlyObserved))
	for _, name := range onlyObserved {
		out = append(out, model.Anomaly{
			Kind:     model.HiddenModule,
			Severity: model.Critical,
			Detail:   fmt.Sprintf("module %s is live in /sys/module but missing from /proc/modules", name),
		})
	}
	for _, name := range onlyTrusted {
		out = append(out, model.Anomaly{
			Kind:     model.HiddenModule,
			Severity: model.Warning,
			Detail:   fmt.Sprintf("module %s is listed in /proc/modules but has no /sys/module entry", name),
		})
	}
	return out
}
