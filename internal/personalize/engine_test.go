package personalize

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"droplab/internal/canvas"
)

func TestPersonalize_Basic(t *testing.T) {
	doc := &canvas.Document{Objects: []canvas.Object{
		{
			Type:   "textbox",
			Text:   "Hi {firstName}, you're in {city}!",
			Styles: map[string]any{"3": map[string]any{"fill": "#f00"}},
			Extra:  map[string]json.RawMessage{"styles": json.RawMessage(`{}`), "angle": json.RawMessage(`10`)},
		},
	}}
	row := map[string]string{"firstName": "Sam", "city": "Austin"}

	out, err := Personalize(doc, row)
	if err != nil {
		t.Fatalf("Personalize: %v", err)
	}
	if got := out.Objects[0].Text; got != "Hi Sam, you're in Austin!" {
		t.Fatalf("text = %q", got)
	}
	// 字符级样式覆写在替换后必须被丢弃。
	if out.Objects[0].Styles != nil {
		t.Fatalf("styles not discarded: %v", out.Objects[0].Styles)
	}
	if _, ok := out.Objects[0].Extra["styles"]; ok {
		t.Fatalf("extra styles not discarded")
	}
	if _, ok := out.Objects[0].Extra["angle"]; !ok {
		t.Fatalf("unrelated extra field dropped")
	}
}

func TestPersonalize_DoesNotMutateInput(t *testing.T) {
	doc := &canvas.Document{Objects: []canvas.Object{
		{Type: "textbox", Text: "Hi {name}", Styles: map[string]any{"0": "x"}},
		{Type: "rect", Left: 1, Top: 2},
	}}
	before, _ := json.Marshal(doc)

	out, err := Personalize(doc, map[string]string{"name": "Sam"})
	if err != nil {
		t.Fatalf("Personalize: %v", err)
	}
	out.Objects[0].Text = "mutated"
	out.Objects[1].Left = 99

	after, _ := json.Marshal(doc)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("input mutated:\nbefore %s\nafter  %s", before, after)
	}
}

func TestPersonalize_MissingFieldIsEmpty(t *testing.T) {
	doc := &canvas.Document{Objects: []canvas.Object{
		{Type: "text", Text: "Dear {title} {lastName}"},
	}}
	out, err := Personalize(doc, map[string]string{"lastName": "Chen"})
	if err != nil {
		t.Fatalf("Personalize: %v", err)
	}
	if got := out.Objects[0].Text; got != "Dear  Chen" {
		t.Fatalf("text = %q", got)
	}
}

func makeRows(n int) []map[string]string {
	rows := make([]map[string]string, n)
	for i := range rows {
		rows[i] = map[string]string{"name": "r"}
	}
	return rows
}

func TestRun_ChunkingAndProgress(t *testing.T) {
	doc := &canvas.Document{Objects: []canvas.Object{{Type: "textbox", Text: "{name}"}}}
	rows := makeRows(10000)

	var chunks int
	var last Progress
	err := Run(context.Background(), doc, rows, func(chunk []Variant, p Progress) error {
		chunks++
		if len(chunk) == 0 || len(chunk) > 50 {
			t.Fatalf("chunk size = %d", len(chunk))
		}
		last = p
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if chunks != 200 {
		t.Fatalf("chunks = %d, want 200", chunks)
	}
	if last.Completed != 10000 || last.Total != 10000 || last.Percent != 100 {
		t.Fatalf("final progress = %+v", last)
	}
	if last.TotalChunks != 200 || last.Chunk != 199 {
		t.Fatalf("final chunk indexes = %+v", last)
	}
}

func TestRun_UnevenFinalChunk(t *testing.T) {
	doc := &canvas.Document{Objects: []canvas.Object{{Type: "textbox", Text: "x"}}}

	var sizes []int
	err := Run(context.Background(), doc, makeRows(120), func(chunk []Variant, _ Progress) error {
		sizes = append(sizes, len(chunk))
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(sizes, []int{50, 50, 20}) {
		t.Fatalf("chunk sizes = %v", sizes)
	}
}

func TestRun_RowFailureIsIsolated(t *testing.T) {
	// nil 文档让每一行都失败，批次仍然要完整跑完并给出逐行错误。
	rows := makeRows(60)

	var failed, completed int
	err := Run(context.Background(), nil, rows, func(chunk []Variant, _ Progress) error {
		for _, v := range chunk {
			switch v.Status {
			case StatusFailed:
				failed++
				if v.Err == "" || v.Doc != nil {
					t.Fatalf("failed variant malformed: %+v", v)
				}
			case StatusCompleted:
				completed++
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if failed != 60 || completed != 0 {
		t.Fatalf("failed=%d completed=%d", failed, completed)
	}
}

func TestRun_CallbackErrorStopsBatch(t *testing.T) {
	doc := &canvas.Document{Objects: []canvas.Object{{Type: "textbox", Text: "x"}}}
	calls := 0
	err := Run(context.Background(), doc, makeRows(200), func(_ []Variant, _ Progress) error {
		calls++
		return context.Canceled
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRun_ContextCancelBetweenChunks(t *testing.T) {
	doc := &canvas.Document{Objects: []canvas.Object{{Type: "textbox", Text: "x"}}}
	ctx, cancel := context.WithCancel(context.Background())

	err := Run(ctx, doc, makeRows(200), func(_ []Variant, p Progress) error {
		if p.Chunk == 0 {
			cancel()
		}
		return nil
	})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestValidateJob(t *testing.T) {
	doc := &canvas.Document{Objects: []canvas.Object{
		{Type: "textbox", Text: "Hi {firstName} from {city}"},
	}}

	ok := ValidateJob(doc, makeRowsWith(20, map[string]string{"firstName": "a", "city": "b"}))
	if !ok.Valid || len(ok.Errors) != 0 {
		t.Fatalf("expected valid, got %+v", ok)
	}

	small := ValidateJob(doc, makeRowsWith(5, map[string]string{"firstName": "a", "city": "b"}))
	if small.Valid {
		t.Fatalf("expected invalid for 5 rows")
	}
	if !containsSubstring(small.Errors, "Too few rows") {
		t.Fatalf("errors = %v", small.Errors)
	}

	big := ValidateJob(doc, makeRowsWith(10001, map[string]string{"firstName": "a", "city": "b"}))
	if big.Valid || !containsSubstring(big.Errors, "Too many rows") {
		t.Fatalf("errors = %v", big.Errors)
	}

	missing := ValidateJob(doc, makeRowsWith(20, map[string]string{"firstName": "a"}))
	if missing.Valid || !containsSubstring(missing.Errors, "city") {
		t.Fatalf("errors = %v", missing.Errors)
	}

	emptyDoc := ValidateJob(&canvas.Document{}, makeRowsWith(20, map[string]string{}))
	if emptyDoc.Valid {
		t.Fatalf("expected invalid for empty document")
	}

	noRows := ValidateJob(doc, nil)
	if noRows.Valid || !containsSubstring(noRows.Errors, "no data rows") {
		t.Fatalf("errors = %v", noRows.Errors)
	}
}

func makeRowsWith(n int, row map[string]string) []map[string]string {
	rows := make([]map[string]string, n)
	for i := range rows {
		rows[i] = row
	}
	return rows
}

func containsSubstring(errs []string, sub string) bool {
	for _, e := range errs {
		if strings.Contains(e, sub) {
			return true
		}
	}
	return false
}
