package layout

import "fmt"

// Format 描述一种物理打印尺寸（英寸 + 像素 + DPI），只读参考数据。
type Format struct {
	Key      string  `json:"key"`
	Name     string  `json:"name"`
	WidthIn  float64 `json:"width_in"`
	HeightIn float64 `json:"height_in"`
	WidthPx  float64 `json:"width_px"`
	HeightPx float64 `json:"height_px"`
	DPI      int     `json:"dpi"`
}

// AspectRatio 返回宽高比。
func (f Format) AspectRatio() float64 {
	if f.HeightPx == 0 {
		return 0
	}
	return f.WidthPx / f.HeightPx
}

// Area 返回像素面积。
func (f Format) Area() float64 {
	return f.WidthPx * f.HeightPx
}

const formatDPI = 300

var formats = map[string]Format{
	"postcard_4x6":  formatAt("postcard_4x6", "Postcard 4\"x6\"", 6, 4),
	"postcard_5x7":  formatAt("postcard_5x7", "Postcard 5\"x7\"", 7, 5),
	"postcard_6x9":  formatAt("postcard_6x9", "Postcard 6\"x9\"", 9, 6),
	"postcard_6x11": formatAt("postcard_6x11", "Postcard 6\"x11\"", 11, 6),
	"letter_8.5x11": formatAt("letter_8.5x11", "Letter 8.5\"x11\"", 8.5, 11),
}

func formatAt(key, name string, widthIn, heightIn float64) Format {
	return Format{
		Key:      key,
		Name:     name,
		WidthIn:  widthIn,
		HeightIn: heightIn,
		WidthPx:  widthIn * formatDPI,
		HeightPx: heightIn * formatDPI,
		DPI:      formatDPI,
	}
}

// LookupFormat 按 key 查找打印格式。
func LookupFormat(key string) (Format, error) {
	f, ok := formats[key]
	if !ok {
		return Format{}, fmt.Errorf("unknown print format %q", key)
	}
	return f, nil
}

// Formats 返回全部可用格式（副本，调用方可随意修改）。
func Formats() []Format {
	out := make([]Format, 0, len(formats))
	for _, f := range formats {
		out = append(out, f)
	}
	return out
}
