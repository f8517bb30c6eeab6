package canvas

import (
	"encoding/json"
	"fmt"
)

// knownObjectFields 列出 Object 结构体已建模的 JSON 字段。
// 反序列化时其余字段进入 Extra，序列化时再合并回去。
var knownObjectFields = map[string]struct{}{
	"type":       {},
	"left":       {},
	"top":        {},
	"width":      {},
	"height":     {},
	"scaleX":     {},
	"scaleY":     {},
	"text":       {},
	"fontFamily": {},
	"fontSize":   {},
	"fill":       {},
	"styles":     {},
}

type objectAlias Object

// UnmarshalJSON 解析 fabric 风格的对象 JSON，未建模字段保留到 Extra。
func (o *Object) UnmarshalJSON(data []byte) error {
	var alias objectAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return fmt.Errorf("decode canvas object: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode canvas object fields: %w", err)
	}
	for k := range raw {
		if _, known := knownObjectFields[k]; known {
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		alias.Extra = raw
	}

	*o = Object(alias)
	return nil
}

// MarshalJSON 输出对象 JSON，Extra 中的字段原样回填。
// 已建模字段优先，Extra 中的同名字段不会覆盖。
func (o Object) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(objectAlias(o))
	if err != nil {
		return nil, fmt.Errorf("encode canvas object: %w", err)
	}
	if len(o.Extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, fmt.Errorf("merge canvas object fields: %w", err)
	}
	for k, v := range o.Extra {
		if _, exists := merged[k]; exists {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// ParseDocument 解析一份画布文档 JSON。
func ParseDocument(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty canvas document")
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode canvas document: %w", err)
	}
	return &doc, nil
}

// EncodeDocument 序列化画布文档。
func EncodeDocument(doc *Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode canvas document: %w", err)
	}
	return data, nil
}
