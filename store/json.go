package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/bytedance/sonic"
	"github.com/gtoxlili/pumpRadar/config"
	"github.com/gtoxlili/pumpRadar/entity"
)

var fileMu sync.Mutex

// ResultFileName strategy_results_YYYYmmdd_HHMMSS.json
func ResultFileName(at time.Time) string {
	return config.ResultFilePrefix + at.Format(config.ResultTimeLayout) + ".json"
}

// WriteResults 把策略结果写入 dir 下带时间戳的 JSON 文件，返回文件路径
func WriteResults(dir string, summaries []entity.StrategySummary, at time.Time) (string, error) {
	if summaries == nil {
		summaries = []entity.StrategySummary{}
	}
	payload, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}

	fileMu.Lock()
	defer fileMu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, ResultFileName(at))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", err
	}
	defer file.Close()
	if _, err := file.Write(payload); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// ReadResults 读取导出文件
func ReadResults(path string) ([]entity.StrategySummary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var summaries []entity.StrategySummary
	if err := json.Unmarshal(raw, &summaries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return summaries, nil
}
