package learn

// 中文说明：
// 自适应置信下限：样本不足时用固定默认值；样本充足后随胜率在
// [激进下界, 谨慎上界] 间线性插值——胜率越高，下限越低（更敢出手）。

const (
	floorDefault    = 0.35
	floorUpper      = 0.45 // 谨慎上界（胜率 0 时）
	floorLower      = 0.25 // 激进下界（胜率 1 时）
	floorMinSamples = 10
)

// adaptiveFloor 计算当前置信下限。结果恒在 [floorLower, floorUpper]。
func adaptiveFloor(wins, losses int) float64 {
	n := wins + losses
	if n < floorMinSamples {
		return floorDefault
	}
	winRate := float64(wins) / float64(n)
	t := floorUpper - (floorUpper-floorLower)*winRate
	if t < floorLower {
		return floorLower
	}
	if t > floorUpper {
		return floorUpper
	}
	return t
}
