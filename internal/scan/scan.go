// Package scan 依次执行各项完整性检查并汇总异常记录。
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hara602/rootkitSentry/internal/locator"
	"github.com/Hara602/rootkitSentry/internal/model"
	"github.com/Hara602/rootkitSentry/internal/xref"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrAborted 扫描因资源耗尽被中止
var ErrAborted = errors.New("scan aborted")

// Report 一次扫描的结果
type Report struct {
	SessionID  string
	StartedAt  time.Time
	FinishedAt time.Time
	Anomalies  []model.Anomaly
	Summary    model.Summary
	// Table 定位到的系统调用表 (假设)，没找到时为 nil
	Table *model.DispatchTable
}

type Scanner struct {
	cfg  Config
	deps *Deps
	log  *zap.Logger
}

func New(cfg Config, deps *Deps, log *zap.Logger) *Scanner {
	return &Scanner{cfg: cfg, deps: deps, log: log}
}

// session 单次扫描的工作数据，Run 结束即丢弃
type session struct {
	*Scanner
	log   *zap.Logger
	col   *xref.Collector
	table *model.DispatchTable
	// suspects 文件检查留给类型检查的路径
	suspects []string
}

type check struct {
	name string
	run  func(s *session, ctx context.Context) error
}

func (s *Scanner) checks() []check {
	return []check{
		{"idt", (*session).checkIDT},
		{"dispatch-table", (*session).checkDispatchTable},
		{"processes", (*session).checkProcesses},
		{"files", (*session).checkFiles},
		{"modules", (*session).checkModules},
		{"masquerade", (*session).checkMasquerade},
	}
}

// Run 按固定顺序同步执行所有检查。
// 单个检查失败会降级为一条 CheckIncomplete 警告，只有资源耗尽才中止整个扫描。
func (s *Scanner) Run(ctx context.Context) (*Report, error) {
	report := &Report{SessionID: uuid.NewString(), StartedAt: time.Now()}
	sess := &session{
		Scanner: s,
		log:     s.log.With(zap.String("session", report.SessionID)),
		col:     &xref.Collector{},
	}
	sess.log.Info("🔍 Integrity scan starting")

	var aborted error
	for _, c := range s.checks() {
		if err := ctx.Err(); err != nil {
			sess.incomplete(c.name, err)
			continue
		}
		start := time.Now()
		err := c.run(sess, ctx)
		if errors.Is(err, locator.ErrResourceExhausted) {
			sess.log.Error("scan aborted", zap.String("check", c.name), zap.Error(err))
			aborted = fmt.Errorf("%w: %s: %v", ErrAborted, c.name, err)
			break
		}
		if err != nil {
			sess.incomplete(c.name, err)
			continue
		}
		sess.log.Debug("check finished", zap.String("check", c.name), zap.Duration("took", time.Since(start)))
	}

	report.Anomalies = sess.col.Records()
	report.Summary = sess.col.Summary()
	report.Table = sess.table
	report.FinishedAt = time.Now()
	if aborted != nil {
		report.Summary.Status = 1
	}

	for _, a := range report.Anomalies {
		fields := []zap.Field{
			zap.Stringer("kind", a.Kind),
			zap.Stringer("severity", a.Severity),
			zap.String("detail", a.Detail),
		}
		if a.Severity == model.Critical {
			sess.log.Error("🚨 Anomaly", fields...)
		} else {
			sess.log.Warn("⚠️ Anomaly", fields...)
		}
	}
	sess.log.Info("Integrity scan finished",
		zap.Int("total", report.Summary.Total),
		zap.Int("critical", report.Summary.Criticals),
		zap.Int("warning", report.Summary.Warnings),
		zap.Int("status", report.Summary.Status),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	return report, aborted
}

func (s *session) incomplete(name string, err error) {
	s.log.Warn("check incomplete", zap.String("check", name), zap.Error(err))
	s.col.Add(model.Anomaly{
		Kind:     model.CheckIncomplete,
		Severity: model.Warning,
		Detail:   fmt.Sprintf("%s check incomplete: %v", name, err),
	})
}

var errMissingDep = errors.New("required host primitive unavailable")

func missing(what string) error {
	return fmt.Errorf("%w: %s", errMissingDep, what)
}
