package translator

// Batch 一个批次，持有章内单元序号
type Batch struct {
	Ordinals []int
	Chars    int
}

// PlanBatches 把编码后的文本按顺序切分为批次。
// 双重限制：每批最多 maxUnits 段、maxChars 字符；两者都是效率护栏而非硬约束，
// 单段超过 maxChars 时独占一批而不是报错。所有序号恰好覆盖一次且保持原序。
func PlanBatches(texts []string, maxUnits, maxChars int) []Batch {
	if maxUnits <= 0 {
		maxUnits = 1
	}
	if maxChars <= 0 {
		maxChars = 1
	}

	var batches []Batch
	var cur Batch

	for i, text := range texts {
		chars := len(text)
		if len(cur.Ordinals) > 0 &&
			(len(cur.Ordinals) >= maxUnits || cur.Chars+chars > maxChars) {
			batches = append(batches, cur)
			cur = Batch{}
		}
		cur.Ordinals = append(cur.Ordinals, i)
		cur.Chars += chars
	}
	if len(cur.Ordinals) > 0 {
		batches = append(batches, cur)
	}

	return batches
}
