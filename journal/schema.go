package journal

import (
	"fmt"
	"sort"
	"strings"
)

// Schema 定义每类上报事件应携带的关键字段，便于集中校验。
// 校验只做提示不做拦截：坐席侧上报链路宁可脏一点也不能丢事件。
type Schema struct {
	Event    string
	Required []string
}

var schemas = map[string]Schema{
	"booked": {
		Event:    "booked",
		Required: []string{"load_id", "agreed_rate", "loadboard_rate"},
	},
	"no-agreement": {
		Event:    "no-agreement",
		Required: []string{"load_id"},
	},
	"transfer_failed": {
		Event:    "transfer_failed",
		Required: []string{"reason"},
	},
	"offer": {
		Event:    "offer",
		Required: []string{"by", "rate"},
	},
}

// KnownEvents 返回所有事件名，便于外部生成文档。
func KnownEvents() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ValidateEventFields 检查事件字段是否包含 schema 中要求的 key。
// 未登记的事件名直接放行。
func ValidateEventFields(event string, fields map[string]interface{}) error {
	s, ok := schemas[event]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range s.Required {
		if _, exists := fields[key]; !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ","))
	}
	return nil
}
