package eligibility

import (
	"regexp"
	"strconv"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// normalizeMC 只保留数字（剥掉 "MC"、空格、连字符）。
func normalizeMC(mc string) string {
	return nonDigits.ReplaceAllString(mc, "")
}

// contentOf FMCSA 响应通常把有效载荷包在 content 字段里。
func contentOf(payload interface{}) interface{} {
	if m, ok := payload.(map[string]interface{}); ok {
		if c, ok := m["content"]; ok {
			return c
		}
	}
	return payload
}

func emptyContent(payload interface{}) bool {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return false
	}
	if list, ok := m["content"].([]interface{}); ok {
		return len(list) == 0
	}
	return false
}

// coerceMapping 返回 dict 视图：本身是 dict，或列表里第一个 dict，否则空。
func coerceMapping(x interface{}) map[string]interface{} {
	switch v := x.(type) {
	case map[string]interface{}:
		return v
	case []interface{}:
		for _, it := range v {
			if m, ok := it.(map[string]interface{}); ok {
				return m
			}
		}
	}
	return map[string]interface{}{}
}

// findDOT 在任意嵌套的 dict/list 里递归找 dotNumber。
func findDOT(obj interface{}) string {
	switch v := obj.(type) {
	case map[string]interface{}:
		if dot, ok := v["dotNumber"]; ok && dot != nil {
			return stringify(dot)
		}
		for _, val := range v {
			if s := findDOT(val); s != "" {
				return s
			}
		}
	case []interface{}:
		for _, it := range v {
			if s := findDOT(it); s != "" {
				return s
			}
		}
	}
	return ""
}

// extractStatuses 递归搜寻 common/contract/broker authority 状态，
// 兼容 {"commonAuthorityStatus":"A"}、{"commonAuthority":{"status":"A"}} 等形状。
func extractStatuses(obj interface{}) (common, contract, broker string) {
	var visit func(interface{})
	statusOf := func(v interface{}) string {
		if m, ok := v.(map[string]interface{}); ok {
			if s, ok := m["status"].(string); ok {
				return s
			}
			if s, ok := m["value"].(string); ok {
				return s
			}
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return ""
	}
	visit = func(x interface{}) {
		switch v := x.(type) {
		case map[string]interface{}:
			for k, val := range v {
				low := strings.ToLower(k)
				hasAuthority := strings.Contains(low, "authority")
				switch {
				case hasAuthority && strings.Contains(low, "common"):
					if common == "" {
						common = statusOf(val)
					}
				case hasAuthority && strings.Contains(low, "contract"):
					if contract == "" {
						contract = statusOf(val)
					}
				case hasAuthority && strings.Contains(low, "broker"):
					if broker == "" {
						broker = statusOf(val)
					}
				}
				visit(val)
			}
		case []interface{}:
			for _, it := range v {
				visit(it)
			}
		}
	}
	visit(obj)
	return common, contract, broker
}

// statusActive 把 authority 代码/词归一化为布尔。
func statusActive(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "ACTIVE", "Y", "YES", "AUTHORIZED":
		return true
	}
	return false
}

// statusLabel 摘要串里的展示标签。
func statusLabel(s string) string {
	up := strings.ToUpper(strings.TrimSpace(s))
	switch up {
	case "A", "Y":
		return "ACTIVE"
	case "I":
		return "INACTIVE"
	case "N":
		return "NONE"
	case "":
		return "N/A"
	}
	return up
}

// hasOOS 是否存在 out-of-service 记录。
func hasOOS(obj interface{}) bool {
	check := func(m map[string]interface{}) bool {
		for _, k := range []string{"oosReason", "oosDate"} {
			if v, ok := m[k]; ok && v != nil && v != "" {
				return true
			}
		}
		return false
	}
	switch v := obj.(type) {
	case map[string]interface{}:
		return check(v)
	case []interface{}:
		for _, it := range v {
			if m, ok := it.(map[string]interface{}); ok && check(m) {
				return true
			}
		}
	}
	return false
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		// JSON 数字默认解码为 float64；DOT 实际是整数。
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}
