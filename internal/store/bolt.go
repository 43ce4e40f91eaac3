package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	learnerBucket = "learner"
	stateKey      = "state"
)

// BoltGateway 嵌入式 KV 后端：整个快照按 JSON 存进单一键。
// 适合无 SQL 依赖的部署，流水回查请选 sqlite/postgres。
type BoltGateway struct {
	db *bolt.DB
}

var _ Gateway = (*BoltGateway)(nil)

func NewBoltGateway(path string) (*BoltGateway, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store.path 未配置")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开 bolt 失败: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(learnerBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建 bucket 失败: %w", err)
	}
	return &BoltGateway{db: db}, nil
}

func (g *BoltGateway) Save(_ context.Context, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("序列化状态失败: %w", err)
	}
	return g.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(learnerBucket)).Put([]byte(stateKey), data)
	})
}

func (g *BoltGateway) Load(_ context.Context) (*State, error) {
	var st *State
	err := g.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(learnerBucket)).Get([]byte(stateKey))
		if len(data) == 0 {
			return nil
		}
		var s State
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("解析状态失败: %w", err)
		}
		st = &s
		return nil
	})
	return st, err
}

func (g *BoltGateway) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}
