package personalize

import (
	"regexp"
	"strings"
)

// 变量 token 语法：{fieldName}，字段名区分大小写，仅允许字母数字与下划线，不支持嵌套。
var tokenPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// ExtractFields 返回文本中引用的去重字段名，保持首次出现顺序。
func ExtractFields(text string) []string {
	matches := tokenPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	fields := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		fields = append(fields, name)
	}
	return fields
}

// Substitute 将文本中的每个 {fieldName} 替换为 row 中对应的值。
// 缺失的字段替换为空串，不报错。
func Substitute(text string, row map[string]string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		name := token[1 : len(token)-1]
		return row[name]
	})
}
