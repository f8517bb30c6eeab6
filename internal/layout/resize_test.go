package layout

import (
	"math"
	"testing"

	"droplab/internal/canvas"
)

func mustFormat(t *testing.T, key string) Format {
	t.Helper()
	f, err := LookupFormat(key)
	if err != nil {
		t.Fatalf("LookupFormat(%q): %v", key, err)
	}
	return f
}

func sampleDoc() *canvas.Document {
	return &canvas.Document{Objects: []canvas.Object{
		{Type: "textbox", Text: "Hi", Left: 100, Top: 200, Width: 300, Height: 60},
		{Type: "rect", Left: 0, Top: 0, Width: 50, Height: 50, ScaleX: 2, ScaleY: 0.5},
		{Type: "image", Left: 900, Top: 400, Width: 200, Height: 100},
	}}
}

func TestLookupFormat(t *testing.T) {
	f := mustFormat(t, "postcard_4x6")
	if f.WidthPx != 1800 || f.HeightPx != 1200 || f.DPI != 300 {
		t.Fatalf("postcard_4x6 = %+v", f)
	}
	if _, err := LookupFormat("a0_poster"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestResize_ScaleMultipliesExistingScale(t *testing.T) {
	cur := mustFormat(t, "postcard_4x6")
	tgt := mustFormat(t, "postcard_6x9")
	doc := sampleDoc()

	res, err := Resize(doc, cur, tgt, StrategyScale, Options{})
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}

	ratioX := tgt.WidthPx / cur.WidthPx
	ratioY := tgt.HeightPx / cur.HeightPx
	obj := res.Doc.Objects[1]
	if math.Abs(obj.ScaleX-2*ratioX) > 1e-9 || math.Abs(obj.ScaleY-0.5*ratioY) > 1e-9 {
		t.Fatalf("scale not multiplicative: %v %v", obj.ScaleX, obj.ScaleY)
	}
	if math.Abs(res.Doc.Objects[0].Left-100*ratioX) > 1e-9 {
		t.Fatalf("left not scaled: %v", res.Doc.Objects[0].Left)
	}

	// 输入文档不被修改。
	if doc.Objects[0].Left != 100 || doc.Objects[1].ScaleX != 2 {
		t.Fatalf("input mutated: %+v", doc.Objects)
	}
}

func TestResize_ScaleAspectFitUsesSmallerRatio(t *testing.T) {
	cur := mustFormat(t, "postcard_4x6")
	tgt := mustFormat(t, "postcard_6x11")

	res, err := Resize(sampleDoc(), cur, tgt, StrategyScale, Options{MaintainAspectRatio: true, CenterContent: true})
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	ratioX := tgt.WidthPx / cur.WidthPx
	ratioY := tgt.HeightPx / cur.HeightPx
	want := math.Min(ratioX, ratioY)
	if res.ScaleX != want || res.ScaleY != want {
		t.Fatalf("uniform scale = %v/%v, want %v", res.ScaleX, res.ScaleY, want)
	}
	// 对称居中偏移。
	wantOffsetX := (tgt.WidthPx - cur.WidthPx*want) / 2
	if math.Abs(res.OffsetX-wantOffsetX) > 1e-9 {
		t.Fatalf("offsetX = %v, want %v", res.OffsetX, wantOffsetX)
	}
}

func TestResize_ScaleRoundTrip(t *testing.T) {
	a := mustFormat(t, "postcard_4x6")
	b := mustFormat(t, "postcard_6x9")
	orig := sampleDoc()

	forward, err := Resize(orig, a, b, StrategyScale, Options{MaintainAspectRatio: true})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	back, err := Resize(forward.Doc, b, a, StrategyScale, Options{MaintainAspectRatio: true})
	if err != nil {
		t.Fatalf("back: %v", err)
	}

	for i := range orig.Objects {
		o, r := orig.Objects[i], back.Doc.Objects[i]
		if math.Abs(o.Left-r.Left) > 1e-6 || math.Abs(o.Top-r.Top) > 1e-6 {
			t.Fatalf("object %d position drifted: (%v,%v) vs (%v,%v)", i, o.Left, o.Top, r.Left, r.Top)
		}
		if math.Abs(o.EffectiveScaleX()-r.EffectiveScaleX()) > 1e-6 ||
			math.Abs(o.EffectiveScaleY()-r.EffectiveScaleY()) > 1e-6 {
			t.Fatalf("object %d scale drifted", i)
		}
	}
}

func TestResize_CropSameFormatIsNoop(t *testing.T) {
	f := mustFormat(t, "postcard_4x6")
	res, err := Resize(sampleDoc(), f, f, StrategyCrop, Options{})
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if res.OffsetX != 0 || res.OffsetY != 0 {
		t.Fatalf("offset = (%v,%v), want zero", res.OffsetX, res.OffsetY)
	}
	if len(res.OutOfBounds) != 0 {
		t.Fatalf("out of bounds = %v, want none", res.OutOfBounds)
	}
}

func TestResize_CropReportsOutOfBounds(t *testing.T) {
	cur := mustFormat(t, "postcard_6x11") // 3300x1800
	tgt := mustFormat(t, "postcard_4x6")  // 1800x1200

	doc := &canvas.Document{Objects: []canvas.Object{
		{Type: "textbox", Left: 1650, Top: 900, Width: 100, Height: 40}, // 居中附近，平移后仍在界内
		{Type: "image", Left: 3100, Top: 0, Width: 150, Height: 150},    // 右上角，必然越界
	}}

	res, err := Resize(doc, cur, tgt, StrategyCrop, Options{})
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if res.OffsetX >= 0 || res.OffsetY >= 0 {
		t.Fatalf("shrinking crop must produce negative offsets, got (%v,%v)", res.OffsetX, res.OffsetY)
	}
	if len(res.OutOfBounds) != 1 || res.OutOfBounds[0] != 1 {
		t.Fatalf("out of bounds = %v, want [1]", res.OutOfBounds)
	}
	// 平移不改变缩放。
	if res.Doc.Objects[1].ScaleX != 0 && res.Doc.Objects[1].ScaleX != 1 {
		t.Fatalf("crop touched scale: %v", res.Doc.Objects[1].ScaleX)
	}
}

func TestResize_ReflowFallsBackToScale(t *testing.T) {
	cur := mustFormat(t, "postcard_4x6")
	tgt := mustFormat(t, "letter_8.5x11")

	res, err := Resize(sampleDoc(), cur, tgt, StrategyReflow, Options{})
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if res.Strategy != StrategyReflow || res.Applied != StrategyScale {
		t.Fatalf("strategy = %v applied = %v", res.Strategy, res.Applied)
	}
}

func TestResizeInPlace_MutatesAndUpdatesDimensions(t *testing.T) {
	cur := mustFormat(t, "postcard_4x6")
	tgt := mustFormat(t, "postcard_5x7")
	doc := sampleDoc()
	doc.Width, doc.Height = cur.WidthPx, cur.HeightPx

	res, err := ResizeInPlace(doc, cur, tgt, StrategyScale, Options{})
	if err != nil {
		t.Fatalf("ResizeInPlace: %v", err)
	}
	if res.Doc != doc {
		t.Fatalf("in-place resize must return the same document instance")
	}
	if doc.Width != tgt.WidthPx || doc.Height != tgt.HeightPx {
		t.Fatalf("dimensions not updated: %vx%v", doc.Width, doc.Height)
	}
	if doc.Objects[0].Left == 100 {
		t.Fatalf("objects not transformed in place")
	}
}

func TestRecommendStrategy(t *testing.T) {
	p46 := mustFormat(t, "postcard_4x6")
	p57 := mustFormat(t, "postcard_5x7")
	p611 := mustFormat(t, "postcard_6x11")
	letter := mustFormat(t, "letter_8.5x11")

	if got := RecommendStrategy(p46, p46); got != StrategyCrop {
		t.Errorf("4x6 -> 4x6 = %v, want crop", got)
	}
	if got := RecommendStrategy(p46, p57); got != StrategyScale {
		t.Errorf("4x6 -> 5x7 = %v, want scale", got)
	}
	if got := RecommendStrategy(p46, letter); got != StrategyReflow {
		t.Errorf("4x6 -> letter = %v, want reflow", got)
	}
	if got := RecommendStrategy(p46, p611); got != StrategyScale {
		t.Errorf("4x6 -> 6x11 = %v, want scale", got)
	}
}
