//go:build linux

package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Hara602/rootkitSentry/internal/dirscan"
	"github.com/Hara602/rootkitSentry/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	// exitedName 读 comm 时进程已经退出
	exitedName = "<exited>"
	// unreadableName 进程仍然存活但 status 读不出来
	unreadableName = "<unreadable>"
)

type procLister struct {
	root   string
	walker *dirscan.Walker
	log    *zap.Logger
}

// NewLister root 为空时使用 /proc
func NewLister(root string, log *zap.Logger) Lister {
	if root == "" {
		root = DefaultRoot
	}
	return &procLister{root: root, walker: dirscan.New(nil), log: log}
}

func (p *procLister) Processes() iter.Seq[model.ProcessRecord] {
	return func(yield func(model.ProcessRecord) bool) {
		err := p.walker.Walk(p.root, func(e model.DirEntry) bool {
			if e.Type == model.File {
				return true
			}
			pid, err := strconv.ParseInt(e.Name, 10, 64)
			if err != nil || pid <= 0 {
				return true
			}
			return yield(model.ProcessRecord{PID: pid, Name: p.comm(pid)})
		})
		if err != nil {
			// 没有 /proc 时返回空列表，由调用方报告
			p.log.Warn("process list traversal failed", zap.String("root", p.root), zap.Error(err))
		}
	}
}

func (p *procLister) comm(pid int64) string {
	b, err := os.ReadFile(filepath.Join(p.root, strconv.FormatInt(pid, 10), "comm"))
	if err != nil {
		return exitedName
	}
	return BoundName(strings.TrimSpace(string(b)))
}

// PIDProber 用 kill(pid, 0) 暴力探测 1..MaxPID，
// 再用 /proc/<pid>/status 的 Tgid 排除线程
type PIDProber struct {
	Root   string
	MaxPID int
	// Alive 为空时使用 kill(pid, 0)
	Alive func(pid int) bool
	Log   *zap.Logger
}

// NewProber maxPID <= 0 时读取 kernel.pid_max
func NewProber(root string, maxPID int, log *zap.Logger) (*PIDProber, error) {
	if root == "" {
		root = DefaultRoot
	}
	if maxPID <= 0 {
		var err error
		maxPID, err = readPIDMax(root)
		if err != nil {
			return nil, err
		}
	}
	return &PIDProber{Root: root, MaxPID: maxPID, Log: log}, nil
}

func (p *PIDProber) Probe(ctx context.Context) ([]model.ProcessRecord, error) {
	alive := p.Alive
	if alive == nil {
		alive = killProbe
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	var out []model.ProcessRecord
	for pid := 1; pid <= p.MaxPID; pid++ {
		if pid&0xfff == 0 {
			if err := ctx.Err(); err != nil {
				return out, fmt.Errorf("pid probe interrupted at %d: %w", pid, err)
			}
		}
		if !alive(pid) {
			continue
		}
		name, tgid, err := readStatus(filepath.Join(p.Root, strconv.Itoa(pid), "status"))
		if err != nil {
			// 再探测一次，区分刚退出的进程和 /proc 条目被挡住的进程
			if !alive(pid) {
				continue
			}
			log.Warn("pid is alive but its status is unreadable", zap.Int("pid", pid), zap.Error(err))
			out = append(out, model.ProcessRecord{PID: int64(pid), Name: unreadableName})
			continue
		}
		if tgid != pid {
			continue
		}
		out = append(out, model.ProcessRecord{PID: int64(pid), Name: BoundName(name)})
	}
	return out, nil
}

func killProbe(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func readStatus(path string) (name string, tgid int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	tgid = -1
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, val, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		switch key {
		case "Name":
			name = strings.TrimSpace(val)
		case "Tgid":
			tgid, err = strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return "", 0, fmt.Errorf("bad Tgid in %s: %w", path, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", 0, err
	}
	if tgid < 0 {
		return "", 0, fmt.Errorf("no Tgid in %s", path)
	}
	return name, tgid, nil
}

func readPIDMax(root string) (int, error) {
	b, err := os.ReadFile(filepath.Join(root, "sys", "kernel", "pid_max"))
	if err != nil {
		return 0, fmt.Errorf("read pid_max: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse pid_max: %w", err)
	}
	return n, nil
}
