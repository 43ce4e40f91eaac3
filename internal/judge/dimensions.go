package judge

// 中文说明：
// 评分维度为封闭集合，按重要性分为三层：critical > important > other。
// 每层对应一个固定基础权重；unknown 为残差维度，代表不可归因的不确定性。

// Dimension 评分维度
type Dimension string

const (
	DimSafety     Dimension = "safety"     // 合约/貔貅风险
	DimLiquidity  Dimension = "liquidity"  // 退出流动性深度
	DimMomentum   Dimension = "momentum"   // 价格动能
	DimVolume     Dimension = "volume"     // 成交活跃度
	DimSentiment  Dimension = "sentiment"  // 信号情绪
	DimTiming     Dimension = "timing"     // 信号新鲜度
	DimTechnicals Dimension = "technicals" // 形态吻合度
	DimUnknown    Dimension = "unknown"    // 残差
)

// 分层基础权重
const (
	weightCritical  = 1.0
	weightImportant = 0.7
	weightOther     = 0.4
)

// 中性分：字段缺失与残差维度统一落在这里
const neutralScore = 0.5

// AllDimensions 固定遍历顺序，保证输出稳定
var AllDimensions = []Dimension{
	DimSafety, DimLiquidity,
	DimMomentum, DimVolume, DimSentiment,
	DimTiming, DimTechnicals, DimUnknown,
}

var dimensionWeights = map[Dimension]float64{
	DimSafety:     weightCritical,
	DimLiquidity:  weightCritical,
	DimMomentum:   weightImportant,
	DimVolume:     weightImportant,
	DimSentiment:  weightImportant,
	DimTiming:     weightOther,
	DimTechnicals: weightOther,
	DimUnknown:    weightOther,
}

// Weight 返回维度基础权重；未知维度按 other 层处理。
func Weight(d Dimension) float64 {
	if w, ok := dimensionWeights[d]; ok {
		return w
	}
	return weightOther
}
