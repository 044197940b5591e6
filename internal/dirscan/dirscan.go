// Package dirscan 通过回调遍历目录项。
package dirscan

import (
	"errors"
	"fmt"
	"io"

	"github.com/Hara602/rootkitSentry/internal/model"
)

// Visitor 每个目录项回调一次，返回 false 停止遍历
type Visitor func(model.DirEntry) bool

// PathResolutionError 路径无法解析或者不是目录
type PathResolutionError struct {
	Path string
	Err  error
}

func (e *PathResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Path, e.Err)
}

func (e *PathResolutionError) Unwrap() error { return e.Err }

// IoError 打开/读取/关闭目录时出错
type IoError struct {
	Op   string
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// Handle 已打开的目录
type Handle interface {
	// Next 返回下一批目录项，读完返回 io.EOF
	Next() ([]model.DirEntry, error)
	Close() error
}

// Opener 打开目录，失败时返回 *PathResolutionError 或 *IoError
type Opener interface {
	Open(path string) (Handle, error)
}

type Walker struct {
	opener Opener
}

// New opener 为 nil 时使用平台默认实现
func New(opener Opener) *Walker {
	if opener == nil {
		opener = defaultOpener()
	}
	return &Walker{opener: opener}
}

// Walk 遍历 path 下的目录项 (跳过 . 和 ..)。
// 中途出错时已经回调过的目录项不会撤回；任何退出路径上目录句柄都只关闭一次。
func (w *Walker) Walk(path string, visit Visitor) (err error) {
	h, err := w.opener.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil && err == nil {
			err = &IoError{Op: "close", Path: path, Err: cerr}
		}
	}()

	for {
		batch, rerr := h.Next()
		for _, e := range batch {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			if !visit(e) {
				return nil
			}
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			var ioErr *IoError
			if errors.As(rerr, &ioErr) {
				return rerr
			}
			return &IoError{Op: "read", Path: path, Err: rerr}
		}
	}
}

// Walk 使用默认实现遍历
func Walk(path string, visit Visitor) error {
	return New(nil).Walk(path, visit)
}

// List 收集 path 下的所有目录项
func (w *Walker) List(path string) ([]model.DirEntry, error) {
	var entries []model.DirEntry
	err := w.Walk(path, func(e model.DirEntry) bool {
		entries = append(entries, e)
		return true
	})
	return entries, err
}
