// Package agent 把一次扫描包装成激活/停用两个钩子，供 main 调用。
package agent

import (
	"context"
	"io"

	"github.com/Hara602/rootkitSentry/internal/scan"
	"go.uber.org/zap"
)

// OpenFunc 按配置准备宿主原语，测试中可以替换
type OpenFunc func(scan.Config, *zap.Logger) *scan.Deps

type Agent struct {
	cfg  scan.Config
	log  *zap.Logger
	out  io.Writer
	open OpenFunc
	deps *scan.Deps
}

// New out 为 nil 时不打印控制台报告
func New(cfg scan.Config, log *zap.Logger, out io.Writer) *Agent {
	return &Agent{cfg: cfg, log: log, out: out, open: scan.Open}
}

// WithOpener 替换依赖的打开方式
func (a *Agent) WithOpener(open OpenFunc) *Agent {
	a.open = open
	return a
}

// Activate 同步执行一次完整扫描，返回汇总状态：0 表示扫描跑完 (不论有无异常)。
// 每次调用都重新打开依赖，不复用上一次的状态。
func (a *Agent) Activate(ctx context.Context) int {
	a.Deactivate()
	a.deps = a.open(a.cfg, a.log)

	report, err := scan.New(a.cfg, a.deps, a.log).Run(ctx)
	if err != nil {
		a.log.Error("🚨 Scan did not complete", zap.Error(err))
	}
	if report == nil {
		return 1
	}
	if a.out != nil {
		Print(a.out, report)
	}
	return report.Summary.Status
}

// Deactivate 释放内存镜像和基线数据库，可以重复调用
func (a *Agent) Deactivate() {
	if a.deps == nil {
		return
	}
	if err := a.deps.Close(); err != nil {
		a.log.Warn("release failed", zap.Error(err))
	}
	a.deps = nil
}
