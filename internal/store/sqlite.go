package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteGateway 单文件 SQLite 后端：快照单行覆盖写，
// 决策与课程分别落流水表，供离线复盘与 API 回查。
type SQLiteGateway struct {
	db *sql.DB
	mu sync.Mutex
}

var (
	_ Gateway       = (*SQLiteGateway)(nil)
	_ Journal       = (*SQLiteGateway)(nil)
	_ JournalReader = (*SQLiteGateway)(nil)
)

func NewSQLiteGateway(path string) (*SQLiteGateway, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store.path 未配置")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开 sqlite 失败: %w", err)
	}
	// WAL：评估线程写、API 读互不阻塞
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 失败: %w", err)
	}
	g := &SQLiteGateway{db: db}
	if err := g.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("建表失败: %w", err)
	}
	return g, nil
}

func (g *SQLiteGateway) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS learner_state (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			version    INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload    TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id          TEXT PRIMARY KEY,
			judgment_id TEXT,
			token       TEXT,
			venue_id    TEXT,
			action      TEXT NOT NULL,
			confidence  REAL,
			size        REAL,
			q_score     INTEGER,
			verdict     TEXT,
			reason      TEXT,
			at          INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_at ON decisions(at)`,

		`CREATE TABLE IF NOT EXISTS lessons (
			id           TEXT PRIMARY KEY,
			decision_id  TEXT,
			outcome      TEXT NOT NULL,
			pnl          REAL,
			contributors TEXT,
			at           INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lessons_at ON lessons(at)`,
	}
	for _, s := range stmts {
		if _, err := g.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (g *SQLiteGateway) Save(ctx context.Context, st State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("序列化状态失败: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err = g.db.ExecContext(ctx, `
		INSERT INTO learner_state (id, version, updated_at, payload)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version=excluded.version,
			updated_at=excluded.updated_at,
			payload=excluded.payload;
	`, st.Version, st.UpdatedAt, string(payload))
	return err
}

func (g *SQLiteGateway) Load(ctx context.Context) (*State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var payload string
	err := g.db.QueryRowContext(ctx, `SELECT payload FROM learner_state WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取状态失败: %w", err)
	}
	var st State
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return nil, fmt.Errorf("解析状态失败: %w", err)
	}
	return &st, nil
}

func (g *SQLiteGateway) AppendDecision(ctx context.Context, rec DecisionRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO decisions
			(id, judgment_id, token, venue_id, action, confidence, size, q_score, verdict, reason, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, rec.ID, rec.JudgmentID, rec.Token, rec.VenueID, rec.Action,
		rec.Confidence, rec.Size, rec.QScore, rec.Verdict, rec.Reason, rec.At)
	return err
}

func (g *SQLiteGateway) AppendLesson(ctx context.Context, rec LessonRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO lessons (id, decision_id, outcome, pnl, contributors, at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, rec.ID, rec.DecisionID, rec.Outcome, rec.PnL, rec.Contributors, rec.At)
	return err
}

func (g *SQLiteGateway) RecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, judgment_id, token, venue_id, action, confidence, size, q_score, verdict, reason, at
		FROM decisions ORDER BY at DESC LIMIT ?;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		if err := rows.Scan(&r.ID, &r.JudgmentID, &r.Token, &r.VenueID, &r.Action,
			&r.Confidence, &r.Size, &r.QScore, &r.Verdict, &r.Reason, &r.At); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (g *SQLiteGateway) RecentLessons(ctx context.Context, limit int) ([]LessonRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, decision_id, outcome, pnl, contributors, at
		FROM lessons ORDER BY at DESC LIMIT ?;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LessonRecord
	for rows.Next() {
		var r LessonRecord
		if err := rows.Scan(&r.ID, &r.DecisionID, &r.Outcome, &r.PnL, &r.Contributors, &r.At); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (g *SQLiteGateway) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}
