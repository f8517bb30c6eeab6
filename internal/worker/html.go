package worker

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"droplab/internal/canvas"
	"droplab/internal/layout"
)

// pageTemplateString 是变体 PDF 渲染的 Go HTML 模板。
// 页面尺寸必须与打印格式的像素尺寸 100% 匹配，否则导出时会产生缩放偏差。
const pageTemplateString = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        @page {
            size: {{.WidthIn}}in {{.HeightIn}}in;
            margin: 0;
        }
        body {
            margin: 0;
            padding: 0;
        }
        .page {
            position: relative;
            width: {{.WidthPx}}px;
            height: {{.HeightPx}}px;
            background: {{.Background}};
            overflow: hidden;
        }
        .obj {
            position: absolute;
            box-sizing: border-box;
        }
    </style>
</head>
<body>
    <div class="page">
        {{range .Objects}}
        <div class="obj" style="{{.Style}}">{{.Text}}</div>
        {{end}}
    </div>
</body>
</html>
`

var pageTemplate = template.Must(template.New("variant-page").Parse(pageTemplateString))

type pageObject struct {
	Style template.CSS
	Text  string
}

type pageData struct {
	WidthIn    float64
	HeightIn   float64
	WidthPx    float64
	HeightPx   float64
	Background string
	Objects    []pageObject
}

// RenderHTML 把画布文档渲染为打印就绪的 HTML 页面。
// 对象按文档序绝对定位；QR 对象由调用方提前注入为图片对象。
func RenderHTML(doc *canvas.Document, format layout.Format) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("document is nil")
	}

	background := strings.TrimSpace(doc.Background)
	if background == "" {
		background = "#ffffff"
	}

	data := pageData{
		WidthIn:    format.WidthIn,
		HeightIn:   format.HeightIn,
		WidthPx:    float64(format.WidthPx),
		HeightPx:   float64(format.HeightPx),
		Background: background,
	}

	for i := range doc.Objects {
		obj := &doc.Objects[i]
		data.Objects = append(data.Objects, pageObject{
			Style: template.CSS(objectCSS(obj)),
			Text:  obj.Text,
		})
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute page template: %w", err)
	}
	return buf.String(), nil
}

func objectCSS(obj *canvas.Object) string {
	var b strings.Builder

	fmt.Fprintf(&b, "left:%.2fpx;top:%.2fpx;", obj.Left, obj.Top)
	fmt.Fprintf(&b, "width:%.2fpx;height:%.2fpx;", obj.BoundingWidth(), obj.BoundingHeight())

	switch canvas.KindOf(obj.Type) {
	case canvas.KindTextLike:
		if obj.FontFamily != "" {
			fmt.Fprintf(&b, "font-family:'%s',sans-serif;", cssEscape(obj.FontFamily))
		}
		if obj.FontSize > 0 {
			fmt.Fprintf(&b, "font-size:%.2fpx;", obj.FontSize*obj.EffectiveScaleX())
		}
		if obj.Fill != "" {
			fmt.Fprintf(&b, "color:%s;", cssEscape(obj.Fill))
		}
	case canvas.KindShape:
		if obj.Fill != "" {
			fmt.Fprintf(&b, "background:%s;", cssEscape(obj.Fill))
		}
		if obj.Type == "circle" || obj.Type == "ellipse" {
			b.WriteString("border-radius:50%;")
		}
	case canvas.KindImage:
		if src := imageSource(obj); src != "" {
			fmt.Fprintf(&b, "background-image:url('%s');background-size:cover;", cssEscape(src))
		}
	}

	return b.String()
}

func imageSource(obj *canvas.Object) string {
	raw, ok := obj.Extra["src"]
	if !ok {
		return ""
	}
	src := strings.Trim(string(raw), `"`)
	if strings.HasPrefix(src, "data:image/") || strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src
	}
	return ""
}

// cssEscape 去掉会破坏内联样式的字符，值来自用户保存的画布 JSON。
func cssEscape(value string) string {
	replacer := strings.NewReplacer(`"`, "", "'", "", ";", "", "<", "", ">", "", "\\", "", "\n", "", "\r", "")
	return replacer.Replace(value)
}
