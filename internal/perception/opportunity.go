package perception

import (
	"strings"
)

// 中文说明：
// 感知层输出的数据类型。机会（Opportunity）一经产生即不可变，
// 评分与决策环节只读取，不回写。

// Direction 信号方向
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// 信号类型（开放集合，以下为感知层常见取值）
const (
	SignalPriceSpike  = "price_spike"
	SignalWhaleBuy    = "whale_buy"
	SignalNewListing  = "new_listing"
	SignalVolumeSurge = "volume_surge"
)

// Signal 感知层原始信号：类型 + 已归一化的指标载荷。
// Data 中的值均应落在 [0,1]，缺失键由评分器按中性值处理。
type Signal struct {
	Type string             `json:"type"`
	Data map[string]float64 `json:"data,omitempty"`
}

// Opportunity 一次可评估的机会。
type Opportunity struct {
	ID        string    `json:"id"`
	Signal    Signal    `json:"signal"`
	Direction Direction `json:"direction"`
	Magnitude float64   `json:"magnitude"` // [0,1]
	Token     string    `json:"token"`
	VenueID   string    `json:"venue_id"`
}

// Normalize 规范外部输入：方向缺省 LONG，幅度收敛到 [0,1]，token 统一大写。
func (o Opportunity) Normalize() Opportunity {
	switch o.Direction {
	case DirectionLong, DirectionShort:
	default:
		o.Direction = DirectionLong
	}
	if o.Magnitude < 0 {
		o.Magnitude = 0
	}
	if o.Magnitude > 1 {
		o.Magnitude = 1
	}
	o.Token = strings.ToUpper(strings.TrimSpace(o.Token))
	o.VenueID = strings.TrimSpace(o.VenueID)
	return o
}

// DataValue 读取信号载荷；键缺失时返回 (0, false)。
func (o Opportunity) DataValue(key string) (float64, bool) {
	if o.Signal.Data == nil {
		return 0, false
	}
	v, ok := o.Signal.Data[key]
	return v, ok
}
