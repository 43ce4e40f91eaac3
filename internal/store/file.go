package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileGateway 把快照存成单个 JSON 文件，缺省后端。
// 文件不存在视为首次运行，不算错误。
type FileGateway struct {
	mu   sync.Mutex
	path string
}

var _ Gateway = (*FileGateway)(nil)

func NewFileGateway(path string) (*FileGateway, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store.path 未配置")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建状态目录失败: %w", err)
		}
	}
	return &FileGateway{path: path}, nil
}

func (g *FileGateway) Save(_ context.Context, st State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化状态失败: %w", err)
	}
	// 先写临时文件再改名，避免写一半被读到
	tmp := g.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写入状态文件失败: %w", err)
	}
	return os.Rename(tmp, g.path)
}

func (g *FileGateway) Load(_ context.Context) (*State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	data, err := os.ReadFile(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取状态文件失败: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("解析状态文件失败: %w", err)
	}
	return &st, nil
}

func (g *FileGateway) Close() error { return nil }
