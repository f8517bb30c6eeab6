package personalize

import (
	"sort"
	"strings"
	"unicode"

	"droplab/internal/canvas"
)

// TemplateVariable 描述模板中检测到的一个变量字段。
type TemplateVariable struct {
	Field     string `json:"field"`
	Label     string `json:"label"`
	Sample    string `json:"sample"`
	Locations []int  `json:"locations"`
}

// DetectVariables 扫描文档中所有文本类对象，聚合去重后的变量字段。
// 结果按字段名排序，对相同输入是确定性的；没有变量时返回空切片。
func DetectVariables(doc *canvas.Document) []TemplateVariable {
	byField := make(map[string]*TemplateVariable)

	for i := range doc.Objects {
		obj := &doc.Objects[i]
		if obj.Kind() != canvas.KindTextLike {
			continue
		}
		for _, field := range ExtractFields(obj.Text) {
			v, ok := byField[field]
			if !ok {
				v = &TemplateVariable{
					Field:  field,
					Label:  Humanize(field),
					Sample: sampleValue(field, 0),
				}
				byField[field] = v
			}
			v.Locations = append(v.Locations, i)
		}
	}

	vars := make([]TemplateVariable, 0, len(byField))
	for _, v := range byField {
		vars = append(vars, *v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Field < vars[j].Field })
	return vars
}

// Humanize 把字段名转换成人类可读的标签：
// 按下划线与 camelCase 边界拆词，每个词首字母大写。
func Humanize(field string) string {
	var words []string
	for _, part := range strings.Split(field, "_") {
		words = append(words, splitCamel(part)...)
	}

	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

func splitCamel(s string) []string {
	if s == "" {
		return nil
	}
	var words []string
	start := 0
	runes := []rune(s)
	for i := 1; i < len(runes); i++ {
		if unicode.IsUpper(runes[i]) && !unicode.IsUpper(runes[i-1]) {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	words = append(words, string(runes[start:]))
	return words
}

func titleWord(w string) string {
	if w == "" {
		return w
	}
	runes := []rune(strings.ToLower(w))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// sampleClasses 按出现顺序做前缀/包含匹配，第一条命中生效。
// alternates 用于示例 CSV 的多行轮换。
var sampleClasses = []struct {
	match      []string
	alternates []string
}{
	{[]string{"email"}, []string{"sam@example.com", "alex@example.com", "jordan@example.com"}},
	{[]string{"firstname", "first_name", "first"}, []string{"Sam", "Alex", "Jordan"}},
	{[]string{"lastname", "last_name", "last"}, []string{"Taylor", "Rivera", "Chen"}},
	{[]string{"fullname", "full_name", "name"}, []string{"Sam Taylor", "Alex Rivera", "Jordan Chen"}},
	{[]string{"phone", "mobile", "tel"}, []string{"(512) 555-0114", "(737) 555-0168", "(214) 555-0143"}},
	{[]string{"company", "business", "org"}, []string{"Acme Plumbing", "Bluebonnet Bakery", "Lone Star Fitness"}},
	{[]string{"city", "town"}, []string{"Austin", "Dallas", "Houston"}},
	{[]string{"state", "province"}, []string{"TX", "CA", "NY"}},
	{[]string{"zip", "postal"}, []string{"78701", "75201", "77002"}},
	{[]string{"address", "street"}, []string{"123 Main St", "456 Oak Ave", "789 Cedar Ln"}},
	{[]string{"amount", "price", "discount", "offer"}, []string{"$25", "$50", "$10"}},
	{[]string{"date", "expires", "deadline"}, []string{"June 30", "July 15", "August 1"}},
	{[]string{"url", "website", "link"}, []string{"example.com/offer", "example.com/deals", "example.com/win"}},
}

// sampleValue 基于小写字段名的启发式匹配合成示例值。
// rotation 用于示例 CSV 的第 N 行；未命中任何模式时退回到标签本身。
func sampleValue(field string, rotation int) string {
	lower := strings.ToLower(field)
	for _, class := range sampleClasses {
		for _, m := range class.match {
			if strings.Contains(lower, m) {
				return class.alternates[rotation%len(class.alternates)]
			}
		}
	}
	return Humanize(field)
}
