package perception

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Source 机会来源接口
type Source interface {
	Pull(ctx context.Context) ([]Opportunity, error)
	Name() string
}

// SyntheticSource 合成来源：从固定 token 池按随机种子生成机会，
// 用于纸面运行与联调（真实感知层是外部协作方）。
type SyntheticSource struct {
	tokens []string
	venue  string
	rng    *rand.Rand
}

func NewSyntheticSource(tokens []string, venue string, seed int64) (*SyntheticSource, error) {
	if len(tokens) == 0 {
		return nil, errors.New("token 池为空")
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	pool := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = normalizeToken(t); t != "" {
			pool = append(pool, t)
		}
	}
	if len(pool) == 0 {
		return nil, errors.New("标准化后 token 池为空")
	}
	return &SyntheticSource{tokens: pool, venue: venue, rng: rand.New(rand.NewSource(seed))}, nil
}

func (s *SyntheticSource) Name() string { return "synthetic" }

// Pull 每次产出 1~3 个机会。信号载荷覆盖评分器关注的各个键，
// 并刻意留出缺失值以模拟不完整数据。
func (s *SyntheticSource) Pull(ctx context.Context) ([]Opportunity, error) {
	n := 1 + s.rng.Intn(3)
	out := make([]Opportunity, 0, n)
	types := []string{SignalPriceSpike, SignalWhaleBuy, SignalNewListing, SignalVolumeSurge}
	for i := 0; i < n; i++ {
		dir := DirectionLong
		if s.rng.Float64() < 0.3 {
			dir = DirectionShort
		}
		data := map[string]float64{
			"safety":    0.3 + 0.7*s.rng.Float64(),
			"liquidity": 0.2 + 0.8*s.rng.Float64(),
			"sentiment": s.rng.Float64(),
			"volume":    s.rng.Float64(),
		}
		if s.rng.Float64() < 0.7 {
			data["age_min"] = 240 * s.rng.Float64()
		}
		if s.rng.Float64() < 0.5 {
			data["pattern"] = s.rng.Float64()
		}
		op := Opportunity{
			ID:        uuid.NewString(),
			Signal:    Signal{Type: types[s.rng.Intn(len(types))], Data: data},
			Direction: dir,
			Magnitude: s.rng.Float64(),
			Token:     s.tokens[s.rng.Intn(len(s.tokens))],
			VenueID:   s.venue,
		}
		out = append(out, op.Normalize())
	}
	return out, nil
}

// HTTPSource 从自定义 API 拉取机会。支持两种返回格式：
// 1) [ {...}, {...} ]
// 2) {"opportunities": [ {...}, ... ]}
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *HTTPSource) Name() string { return "http" }

func (p *HTTPSource) Pull(ctx context.Context) ([]Opportunity, error) {
	if p.URL == "" {
		return nil, errors.New("feed.api_url 未配置")
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("http 状态异常: %d", resp.StatusCode)
	}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var arr []Opportunity
	if err := json.Unmarshal(raw, &arr); err == nil {
		return normalizeAll(arr), nil
	}
	// 回退解析对象包装
	var obj struct {
		Opportunities []Opportunity `json:"opportunities"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return normalizeAll(obj.Opportunities), nil
}

func normalizeAll(in []Opportunity) []Opportunity {
	out := make([]Opportunity, 0, len(in))
	for _, op := range in {
		op = op.Normalize()
		if op.Token == "" {
			continue
		}
		if op.ID == "" {
			op.ID = uuid.NewString()
		}
		out = append(out, op)
	}
	return out
}

func normalizeToken(s string) string {
	return Opportunity{Token: s}.Normalize().Token
}
