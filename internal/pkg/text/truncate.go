package text

import "unicode/utf8"

// Truncate 把字符串限制在 max 字节内，超长部分替换为省略号。
// 截断点回退到完整字符边界，中文理由不会被切出半个字。
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
