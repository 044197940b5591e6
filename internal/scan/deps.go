package scan

import (
	"context"
	"errors"

	"github.com/Hara602/rootkitSentry/internal/analysis"
	"github.com/Hara602/rootkitSentry/internal/baseline"
	"github.com/Hara602/rootkitSentry/internal/dirscan"
	"github.com/Hara602/rootkitSentry/internal/idt"
	"github.com/Hara602/rootkitSentry/internal/ksyms"
	"github.com/Hara602/rootkitSentry/internal/memimage"
	"github.com/Hara602/rootkitSentry/internal/model"
	"github.com/Hara602/rootkitSentry/internal/proc"
	"go.uber.org/zap"
)

// FileInfo lstat 的结果
type FileInfo struct {
	Inode uint64
	Type  model.EntryType
	Nlink uint64
}

// Baseline 目录内容基线
type Baseline interface {
	Names(ctx context.Context, dir string) ([]string, error)
	Record(ctx context.Context, dir string, entries []model.DirEntry) error
}

// Deps 宿主环境提供的原语。为 nil 的依赖会让对应检查报告 CheckIncomplete。
type Deps struct {
	Image     memimage.Image
	Symbols   *ksyms.Table
	IDTBase   idt.BaseReader
	Lister    proc.Lister
	Prober    proc.Prober
	Walker    *dirscan.Walker
	Stat      func(path string) (FileInfo, error)
	Baseline  Baseline
	Inspector *analysis.TypeInspector
}

// Open 按配置准备依赖。单个依赖打开失败只记录日志，不影响其他检查。
func Open(cfg Config, log *zap.Logger) *Deps {
	d := &Deps{
		Lister:    proc.NewLister(cfg.ProcRoot, log),
		Walker:    dirscan.New(nil),
		Stat:      lstatFile,
		Inspector: analysis.NewTypeInspector(),
	}

	if syms, err := ksyms.Load(cfg.KallsymsPath); err != nil {
		log.Warn("kernel symbols unavailable", zap.Error(err))
	} else if syms.Len() == 0 {
		log.Warn("kernel symbols are all zero, is kernel.kptr_restrict set?", zap.String("path", cfg.KallsymsPath))
	} else {
		d.Symbols = syms
	}

	var (
		img memimage.Image
		err error
	)
	if cfg.RawImageBase != 0 {
		img, err = memimage.OpenRaw(cfg.ImagePath, cfg.RawImageBase)
	} else {
		img, err = memimage.OpenELF(cfg.ImagePath)
	}
	if err != nil {
		log.Warn("memory image unavailable", zap.String("path", cfg.ImagePath), zap.Error(err))
	} else {
		d.Image = img
	}

	switch {
	case cfg.IDTBase != 0:
		d.IDTBase = idt.FixedBase(cfg.IDTBase)
	case d.Symbols != nil:
		d.IDTBase = idt.SymbolBase{Symbols: d.Symbols}
	}

	if prober, err := proc.NewProber(cfg.ProcRoot, cfg.MaxPID, log); err != nil {
		log.Warn("pid prober unavailable", zap.Error(err))
	} else {
		d.Prober = prober
	}

	if cfg.BaselinePath != "" {
		if store, err := baseline.Open(cfg.BaselinePath); err != nil {
			log.Warn("baseline store unavailable", zap.String("path", cfg.BaselinePath), zap.Error(err))
		} else {
			d.Baseline = store
		}
	}
	return d
}

// Close 释放仍持有的资源
func (d *Deps) Close() error {
	var errs []error
	if d.Image != nil {
		errs = append(errs, d.Image.Close())
	}
	if c, ok := d.Baseline.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
