package xref

import (
	"sync"

	"github.com/Hara602/rootkitSentry/internal/model"
)

// Collector 一次扫描的异常记录，唯一的汇总点
type Collector struct {
	mu      sync.Mutex
	records []model.Anomaly
}

func (c *Collector) Add(anomalies ...model.Anomaly) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, anomalies...)
}

// Records 按加入顺序返回副本
func (c *Collector) Records() []model.Anomaly {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Anomaly, len(c.records))
	copy(out, c.records)
	return out
}

func (c *Collector) Summary() model.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := model.Summary{Total: len(c.records)}
	for _, a := range c.records {
		if a.Severity == model.Critical {
			s.Criticals++
		} else {
			s.Warnings++
		}
	}
	return s
}
