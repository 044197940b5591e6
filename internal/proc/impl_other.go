//go:build !linux

package proc

import (
	"context"
	"errors"
	"iter"

	"github.com/Hara602/rootkitSentry/internal/model"
	"go.uber.org/zap"
)

var errUnsupported = errors.New("process probing is only supported on linux")

type emptyLister struct{}

func NewLister(root string, log *zap.Logger) Lister { return emptyLister{} }

func (emptyLister) Processes() iter.Seq[model.ProcessRecord] {
	return func(func(model.ProcessRecord) bool) {}
}

type PIDProber struct{}

func NewProber(root string, maxPID int, log *zap.Logger) (*PIDProber, error) { return nil, errUnsupported }

func (p *PIDProber) Probe(context.Context) ([]model.ProcessRecord, error) {
	return nil, errUnsupported
}
