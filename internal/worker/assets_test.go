package worker

import (
	"context"
	"encoding/json"
	"testing"

	"droplab/internal/canvas"
)

func TestInlineAssets_LeavesForeignSourcesAlone(t *testing.T) {
	doc := &canvas.Document{
		Objects: []canvas.Object{
			{
				Type:  "image",
				Extra: map[string]json.RawMessage{"src": json.RawMessage(`"data:image/png;base64,AAAA"`)},
			},
			{
				Type:  "image",
				Extra: map[string]json.RawMessage{"src": json.RawMessage(`"https://cdn.example/logo.png"`)},
			},
			{
				// 其他用户的素材 key 不在内联范围内。
				Type:  "image",
				Extra: map[string]json.RawMessage{"src": json.RawMessage(`"design-assets/99/logo.png"`)},
			},
			{Type: "textbox", Text: "hello"},
		},
	}

	missing, err := inlineAssets(context.Background(), nil, doc, 7)
	if err != nil {
		t.Fatalf("inlineAssets returned error: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("expected no missing assets, got %v", missing)
	}

	for i, want := range []string{
		`"data:image/png;base64,AAAA"`,
		`"https://cdn.example/logo.png"`,
		`"design-assets/99/logo.png"`,
	} {
		got := string(doc.Objects[i].Extra["src"])
		if got != want {
			t.Fatalf("object %d src changed: got %s, want %s", i, got, want)
		}
	}
}
