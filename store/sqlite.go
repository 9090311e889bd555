package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/bytedance/sonic"
	"github.com/gtoxlili/pumpRadar/entity"
	_ "modernc.org/sqlite"
)

// SQLite 保存每次运行的策略结果快照，仅供离线分析
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "data/pumpradar.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := configure(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func configure(db *sql.DB) error {
	pragmas := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA synchronous = NORMAL;`,
		`PRAGMA busy_timeout = 5000;`,
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply sqlite pragma failed: %s: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS strategy_summaries (
			run_id        TEXT    NOT NULL,
			strategy_id   INTEGER NOT NULL,
			name          TEXT    NOT NULL,
			direction     TEXT    NOT NULL,
			total_trades  INTEGER NOT NULL,
			win_rate      REAL    NOT NULL,
			total_pnl     REAL    NOT NULL,
			profit_factor REAL    NOT NULL,
			max_drawdown  REAL    NOT NULL,
			sharpe        REAL    NOT NULL,
			final_balance REAL    NOT NULL,
			roi           REAL    NOT NULL,
			config_json   TEXT    NOT NULL,
			stats_json    TEXT    NOT NULL,
			updated_at    TEXT    NOT NULL,
			PRIMARY KEY (run_id, strategy_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_summaries_pnl ON strategy_summaries(run_id, total_pnl DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveSummaries 在一个事务内按 (run_id, strategy_id) 覆盖写入
func (s *SQLite) SaveSummaries(ctx context.Context, runID string, summaries []entity.StrategySummary, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO strategy_summaries
		(run_id, strategy_id, name, direction, total_trades, win_rate, total_pnl, profit_factor,
		 max_drawdown, sharpe, final_balance, roi, config_json, stats_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, strategy_id) DO UPDATE SET
			total_trades = excluded.total_trades,
			win_rate = excluded.win_rate,
			total_pnl = excluded.total_pnl,
			profit_factor = excluded.profit_factor,
			max_drawdown = excluded.max_drawdown,
			sharpe = excluded.sharpe,
			final_balance = excluded.final_balance,
			roi = excluded.roi,
			stats_json = excluded.stats_json,
			updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := at.UTC().Format(time.RFC3339)
	for _, sm := range summaries {
		cfgJSON, err := json.MarshalString(sm.Config)
		if err != nil {
			return fmt.Errorf("encode config of strategy %d: %w", sm.ID, err)
		}
		statsJSON, err := json.MarshalString(sm.Stats)
		if err != nil {
			return fmt.Errorf("encode stats of strategy %d: %w", sm.ID, err)
		}
		st := sm.Stats
		if _, err := stmt.ExecContext(ctx, runID, sm.ID, sm.Name, string(sm.Config.Direction), st.TotalTrades,
			st.WinRate, st.TotalPnl, st.ProfitFactor, st.MaxDrawdown, st.Sharpe, sm.FinalBalance, sm.ROI,
			cfgJSON, statsJSON, ts); err != nil {
			return fmt.Errorf("save strategy %d: %w", sm.ID, err)
		}
	}
	return tx.Commit()
}

// LoadRun 按总盈亏降序读取某次运行的结果（不含成交记录）
func (s *SQLite) LoadRun(ctx context.Context, runID string) ([]entity.StrategySummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT strategy_id, name, final_balance, roi, config_json, stats_json
		FROM strategy_summaries WHERE run_id = ? ORDER BY total_pnl DESC, strategy_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.StrategySummary
	for rows.Next() {
		var (
			sm                  entity.StrategySummary
			cfgJSON, statsJSON string
		)
		if err := rows.Scan(&sm.ID, &sm.Name, &sm.FinalBalance, &sm.ROI, &cfgJSON, &statsJSON); err != nil {
			return nil, err
		}
		if err := json.UnmarshalString(cfgJSON, &sm.Config); err != nil {
			return nil, fmt.Errorf("decode config of strategy %d: %w", sm.ID, err)
		}
		if err := json.UnmarshalString(statsJSON, &sm.Stats); err != nil {
			return nil, fmt.Errorf("decode stats of strategy %d: %w", sm.ID, err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
