package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/lib/pq"
)

// PostgresGateway 共享数据库后端，多实例部署时用。
// 表结构与 sqlite 后端对齐，占位符换成 $N。
type PostgresGateway struct {
	db *sql.DB
	mu sync.Mutex
}

var (
	_ Gateway       = (*PostgresGateway)(nil)
	_ Journal       = (*PostgresGateway)(nil)
	_ JournalReader = (*PostgresGateway)(nil)
)

func NewPostgresGateway(dsn string) (*PostgresGateway, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("store.dsn 未配置")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开 postgres 失败: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres 连接检查失败: %w", err)
	}
	g := &PostgresGateway{db: db}
	if err := g.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("建表失败: %w", err)
	}
	return g, nil
}

func (g *PostgresGateway) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS learner_state (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			version    INTEGER NOT NULL,
			updated_at BIGINT NOT NULL,
			payload    TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id          TEXT PRIMARY KEY,
			judgment_id TEXT,
			token       TEXT,
			venue_id    TEXT,
			action      TEXT NOT NULL,
			confidence  DOUBLE PRECISION,
			size        DOUBLE PRECISION,
			q_score     INTEGER,
			verdict     TEXT,
			reason      TEXT,
			at          BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_at ON decisions(at)`,

		`CREATE TABLE IF NOT EXISTS lessons (
			id           TEXT PRIMARY KEY,
			decision_id  TEXT,
			outcome      TEXT NOT NULL,
			pnl          DOUBLE PRECISION,
			contributors TEXT,
			at           BIGINT NOT NULL
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

func (g *PostgresGateway) Save(ctx context.Context, st State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("序列化状态失败: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err = g.db.ExecContext(ctx, `
		INSERT INTO learner_state (id, version, updated_at, payload)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			version=EXCLUDED.version,
			updated_at=EXCLUDED.updated_at,
			payload=EXCLUDED.payload;
	`, st.Version, st.UpdatedAt, string(payload))
	return err
}

func (g *PostgresGateway) Load(ctx context.Context) (*State, error) {
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

func (g *PostgresGateway) AppendDecision(ctx context.Context, rec DecisionRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO decisions
			(id, judgment_id, token, venue_id, action, confidence, size, q_score, verdict, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING;
	`, rec.ID, rec.JudgmentID, rec.Token, rec.VenueID, rec.Action,
		rec.Confidence, rec.Size, rec.QScore, rec.Verdict, rec.Reason, rec.At)
	return err
}

func (g *PostgresGateway) AppendLesson(ctx context.Context, rec LessonRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO lessons (id, decision_id, outcome, pnl, contributors, at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING;
	`, rec.ID, rec.DecisionID, rec.Outcome, rec.PnL, rec.Contributors, rec.At)
	return err
}

func (g *PostgresGateway) RecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, judgment_id, token, venue_id, action, confidence, size, q_score, verdict, reason, at
		FROM decisions ORDER BY at DESC LIMIT $1;
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

func (g *PostgresGateway) RecentLessons(ctx context.Context, limit int) ([]LessonRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, decision_id, outcome, pnl, contributors, at
		FROM lessons ORDER BY at DESC LIMIT $1;
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

func (g *PostgresGateway) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}
