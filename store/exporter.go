// Package store 负责把策略结果单向导出到磁盘，核心逻辑不依赖它。
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gtoxlili/pumpRadar/entity"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "store")

// Exporter 同时写 JSON 文件与 SQLite 快照；db 为 nil 时只写文件
type Exporter struct {
	dir   string
	db    *SQLite
	runID string
	now   func() time.Time
}

func NewExporter(dir string, db *SQLite) *Exporter {
	return &Exporter{dir: dir, db: db, runID: uuid.NewString(), now: time.Now}
}

func (e *Exporter) RunID() string { return e.runID }

// Export 返回写入的文件路径
func (e *Exporter) Export(ctx context.Context, summaries []entity.StrategySummary) (string, error) {
	at := e.now()
	path, err := WriteResults(e.dir, summaries, at)
	if err != nil {
		return "", fmt.Errorf("write results: %w", err)
	}
	if e.db != nil {
		if err := e.db.SaveSummaries(ctx, e.runID, summaries, at); err != nil {
			return path, fmt.Errorf("save snapshot: %w", err)
		}
	}
	log.WithFields(logrus.Fields{
		"run_id":     e.runID,
		"strategies": len(summaries),
		"path":       path,
	}).Info("results saved")
	return path, nil
}
