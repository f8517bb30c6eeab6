package worker

import (
	"encoding/json"
	"strings"
	"testing"

	"droplab/internal/canvas"
	"droplab/internal/layout"
	"droplab/internal/personalize"
)

func TestRenderHTML_PageMatchesFormat(t *testing.T) {
	format, err := layout.LookupFormat("postcard_4x6")
	if err != nil {
		t.Fatalf("LookupFormat: %v", err)
	}

	doc := &canvas.Document{
		Background: "#fffbe6",
		Objects: []canvas.Object{
			{Type: "textbox", Left: 100, Top: 50, Width: 300, Height: 40, Text: "Hi Ann", FontSize: 24, Fill: "#222222"},
			{Type: "rect", Left: 0, Top: 0, Width: 120, Height: 80, Fill: "#ff0000"},
		},
	}

	html, err := RenderHTML(doc, format)
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}

	for _, want := range []string{
		"width: 1800px", "height: 1200px",
		"size: 6in 4in",
		"background: #fffbe6",
		"Hi Ann",
		"background:#ff0000",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered html missing %q", want)
		}
	}
}

func TestRenderHTML_EscapesUserText(t *testing.T) {
	format, _ := layout.LookupFormat("postcard_4x6")
	doc := &canvas.Document{
		Objects: []canvas.Object{
			{Type: "textbox", Text: `<script>alert(1)</script>`},
		},
	}

	html, err := RenderHTML(doc, format)
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	if strings.Contains(html, "<script>alert") {
		t.Error("user text was not escaped")
	}
}

func TestStampQR_AppendsImageObject(t *testing.T) {
	format, _ := layout.LookupFormat("postcard_4x6")
	doc := &canvas.Document{
		Objects: []canvas.Object{{Type: "textbox", Text: "hello"}},
	}

	if err := stampQR(doc, "https://droplab.example", "pc_abc", "dl1.token", format); err != nil {
		t.Fatalf("stampQR: %v", err)
	}
	if len(doc.Objects) != 2 {
		t.Fatalf("expected 2 objects after stamp, got %d", len(doc.Objects))
	}

	stamp := doc.Objects[1]
	if stamp.Type != "image" {
		t.Fatalf("stamp type = %q, want image", stamp.Type)
	}
	if stamp.Left+stamp.Width > float64(format.WidthPx) || stamp.Top+stamp.Height > float64(format.HeightPx) {
		t.Error("stamp placed outside the page")
	}

	var src string
	if err := json.Unmarshal(stamp.Extra["src"], &src); err != nil {
		t.Fatalf("decode stamp src: %v", err)
	}
	if !strings.HasPrefix(src, "data:image/png;base64,") {
		t.Errorf("stamp src is not an inline png: %.40s", src)
	}
}

func TestRecipientID_Precedence(t *testing.T) {
	cases := []struct {
		row  map[string]string
		idx  int
		want string
	}{
		{map[string]string{"recipient_id": "r-77", "email": "a@b.c"}, 0, "r-77"},
		{map[string]string{"email": "a@b.c"}, 0, "a@b.c"},
		{map[string]string{"first_name": "Ann"}, 4, "row-4"},
	}
	for _, tc := range cases {
		got := recipientID(&personalize.Variant{Row: tc.row, Index: tc.idx})
		if got != tc.want {
			t.Errorf("recipientID(%v) = %q, want %q", tc.row, got, tc.want)
		}
	}
}
