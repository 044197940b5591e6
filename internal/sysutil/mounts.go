package sysutil

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
)

// Mount /proc/mounts 中的一行
type Mount struct {
	Source  string
	Target  string
	FSType  string
	Options []string
}

// ReadMounts 解析 mounts 文件
func ReadMounts(mountsPath string) ([]Mount, error) {
	f, err := os.Open(mountsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var mounts []Mount
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		mounts = append(mounts, Mount{
			Source:  unescape(fields[0]),
			Target:  unescape(fields[1]),
			FSType:  fields[2],
			Options: strings.Split(fields[3], ","),
		})
	}
	return mounts, scanner.Err()
}

// HidePID procRoot 挂载时的 hidepid= 选项，没有时返回空串
func HidePID(mounts []Mount, procRoot string) string {
	for _, m := range mounts {
		if m.Target != procRoot || m.FSType != "proc" {
			continue
		}
		for _, opt := range m.Options {
			if v, ok := strings.CutPrefix(opt, "hidepid="); ok {
				return v
			}
		}
	}
	return ""
}

// PIDMask 挂载在 /proc/<pid> 上、用来遮住进程目录的挂载
type PIDMask struct {
	PID    int64
	Source string
	FSType string
}

// MaskedPIDs 找出直接挂载在 procRoot/<pid> 上的挂载点 (mount --bind 隐藏进程)
func MaskedPIDs(mounts []Mount, procRoot string) []PIDMask {
	var out []PIDMask
	for _, m := range mounts {
		if path.Dir(m.Target) != procRoot {
			continue
		}
		pid, err := strconv.ParseInt(path.Base(m.Target), 10, 64)
		if err != nil || pid <= 0 {
			continue
		}
		out = append(out, PIDMask{PID: pid, Source: m.Source, FSType: m.FSType})
	}
	return out
}

// unescape 处理 mounts 中的八进制转义 (\040 等)
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func (m Mount) String() string {
	return fmt.Sprintf("%s on %s type %s (%s)", m.Source, m.Target, m.FSType, strings.Join(m.Options, ","))
}
