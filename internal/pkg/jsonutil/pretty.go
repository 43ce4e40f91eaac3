package jsonutil

import (
	"encoding/json"
	"fmt"
)

// Pretty 把任意值渲染成缩进 JSON（调试日志用）；失败时退回 %+v。
func Pretty(v any) string {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(buf)
}
