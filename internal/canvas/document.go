package canvas

import "encoding/json"

// ObjectKind 是画布对象的归一化类型。
// 所有下游逻辑只匹配该枚举，不再各自比较 type 字符串。
type ObjectKind int

const (
	KindUnknown ObjectKind = iota
	KindTextLike
	KindShape
	KindImage
)

func (k ObjectKind) String() string {
	switch k {
	case KindTextLike:
		return "text"
	case KindShape:
		return "shape"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// KindOf 将 fabric 风格的 type 字符串归一化为 ObjectKind。
// 大小写不敏感；未识别的类型返回 KindUnknown（几何变换仍然生效）。
func KindOf(typeName string) ObjectKind {
	switch normalizeTypeName(typeName) {
	case "textbox", "itext", "i-text", "text":
		return KindTextLike
	case "rect", "circle", "ellipse", "triangle", "line", "polygon", "polyline", "path", "group":
		return KindShape
	case "image":
		return KindImage
	default:
		return KindUnknown
	}
}

func normalizeTypeName(name string) string {
	b := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b = append(b, c)
	}
	return string(b)
}

// Object 表示画布中的单个可绘制对象。
// 未建模的 fabric 属性保留在 Extra 中，克隆与序列化时原样携带。
type Object struct {
	Type   string  `json:"type"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	ScaleX float64 `json:"scaleX,omitempty"`
	ScaleY float64 `json:"scaleY,omitempty"`

	// 仅文本类对象使用。
	Text       string         `json:"text,omitempty"`
	FontFamily string         `json:"fontFamily,omitempty"`
	FontSize   float64        `json:"fontSize,omitempty"`
	Fill       string         `json:"fill,omitempty"`
	// Styles 是按字符偏移索引的样式覆写（fabric 的 per-character styles）。
	// 文本长度变化后偏移即失效，个性化时必须丢弃。
	Styles map[string]any `json:"styles,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Kind 返回对象的归一化类型。
func (o *Object) Kind() ObjectKind {
	return KindOf(o.Type)
}

// EffectiveScaleX 返回对象 X 轴缩放，未设置时按 1 处理。
func (o *Object) EffectiveScaleX() float64 {
	if o.ScaleX == 0 {
		return 1
	}
	return o.ScaleX
}

// EffectiveScaleY 返回对象 Y 轴缩放，未设置时按 1 处理。
func (o *Object) EffectiveScaleY() float64 {
	if o.ScaleY == 0 {
		return 1
	}
	return o.ScaleY
}

// BoundingWidth 返回对象在画布上的实际宽度（scale 已生效）。
func (o *Object) BoundingWidth() float64 {
	return o.Width * o.EffectiveScaleX()
}

// BoundingHeight 返回对象在画布上的实际高度。
func (o *Object) BoundingHeight() float64 {
	return o.Height * o.EffectiveScaleY()
}

// Clone 深拷贝对象，Extra 与 Styles 都不共享底层存储。
func (o *Object) Clone() Object {
	cp := *o
	if o.Styles != nil {
		cp.Styles = cloneAnyMap(o.Styles)
	}
	if o.Extra != nil {
		cp.Extra = make(map[string]json.RawMessage, len(o.Extra))
		for k, v := range o.Extra {
			raw := make(json.RawMessage, len(v))
			copy(raw, v)
			cp.Extra[k] = raw
		}
	}
	return cp
}

func cloneAnyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		switch val := v.(type) {
		case map[string]any:
			dst[k] = cloneAnyMap(val)
		case []any:
			arr := make([]any, len(val))
			for i, item := range val {
				if m, ok := item.(map[string]any); ok {
					arr[i] = cloneAnyMap(m)
				} else {
					arr[i] = item
				}
			}
			dst[k] = arr
		default:
			dst[k] = v
		}
	}
	return dst
}

// Document 表示一份设计稿：有序对象列表加文档级元数据。
type Document struct {
	Objects    []Object `json:"objects"`
	Background string   `json:"background,omitempty"`
	Clear      bool     `json:"clear,omitempty"`
	Width      float64  `json:"width,omitempty"`
	Height     float64  `json:"height,omitempty"`
}

// Clone 返回文档的深拷贝，调用方修改副本不会影响原文档。
func (d *Document) Clone() *Document {
	cp := *d
	cp.Objects = make([]Object, len(d.Objects))
	for i := range d.Objects {
		cp.Objects[i] = d.Objects[i].Clone()
	}
	return &cp
}

// TextObjects 返回所有文本类对象的索引。
func (d *Document) TextObjects() []int {
	var idx []int
	for i := range d.Objects {
		if d.Objects[i].Kind() == KindTextLike {
			idx = append(idx, i)
		}
	}
	return idx
}
