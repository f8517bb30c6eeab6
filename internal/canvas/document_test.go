package canvas

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		typeName string
		want     ObjectKind
	}{
		{"textbox", KindTextLike},
		{"Textbox", KindTextLike},
		{"i-text", KindTextLike},
		{"IText", KindTextLike},
		{"text", KindTextLike},
		{"rect", KindShape},
		{"Circle", KindShape},
		{"path", KindShape},
		{"image", KindImage},
		{"video", KindUnknown},
		{"", KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.typeName); got != tc.want {
			t.Errorf("KindOf(%q) = %v, want %v", tc.typeName, got, tc.want)
		}
	}
}

func TestDocumentClone_NoSharedState(t *testing.T) {
	doc := &Document{
		Background: "#ffffff",
		Objects: []Object{
			{
				Type: "textbox",
				Text: "Hi {firstName}",
				Left: 10, Top: 20,
				Styles: map[string]any{"0": map[string]any{"fill": "#f00"}},
				Extra:  map[string]json.RawMessage{"angle": json.RawMessage(`15`)},
			},
			{Type: "rect", Left: 5, Top: 5, Width: 100, Height: 50},
		},
	}

	cp := doc.Clone()
	cp.Objects[0].Text = "changed"
	cp.Objects[0].Styles["0"].(map[string]any)["fill"] = "#00f"
	cp.Objects[0].Extra["angle"] = json.RawMessage(`90`)
	cp.Objects[1].Left = 999

	if doc.Objects[0].Text != "Hi {firstName}" {
		t.Fatalf("clone mutated source text: %q", doc.Objects[0].Text)
	}
	if doc.Objects[0].Styles["0"].(map[string]any)["fill"] != "#f00" {
		t.Fatalf("clone shares styles map with source")
	}
	if string(doc.Objects[0].Extra["angle"]) != "15" {
		t.Fatalf("clone shares extra map with source")
	}
	if doc.Objects[1].Left != 5 {
		t.Fatalf("clone mutated source geometry")
	}
}

func TestObjectJSON_PreservesUnknownFields(t *testing.T) {
	in := []byte(`{"type":"textbox","left":12.5,"top":3,"text":"hello","angle":45,"opacity":0.8}`)

	var obj Object
	if err := json.Unmarshal(in, &obj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if obj.Kind() != KindTextLike {
		t.Fatalf("kind = %v, want text", obj.Kind())
	}
	if obj.Left != 12.5 || obj.Text != "hello" {
		t.Fatalf("known fields not decoded: %+v", obj)
	}
	if _, ok := obj.Extra["angle"]; !ok {
		t.Fatalf("unknown field angle not preserved")
	}

	out, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round map[string]any
	if err := json.Unmarshal(out, &round); err != nil {
		t.Fatalf("round unmarshal: %v", err)
	}
	if round["angle"] != float64(45) {
		t.Fatalf("angle lost on round trip: %v", round["angle"])
	}
	if round["opacity"] != 0.8 {
		t.Fatalf("opacity lost on round trip: %v", round["opacity"])
	}
}

func TestParseDocument(t *testing.T) {
	data := []byte(`{"background":"#fafafa","objects":[
		{"type":"textbox","text":"Hi {name}","left":1,"top":2},
		{"type":"rect","left":0,"top":0,"width":10,"height":10},
		{"type":"image","left":3,"top":4}
	]}`)

	doc, err := ParseDocument(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Objects) != 3 {
		t.Fatalf("objects = %d, want 3", len(doc.Objects))
	}
	if got := doc.TextObjects(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("text objects = %v, want [0]", got)
	}
	if doc.Background != "#fafafa" {
		t.Fatalf("background = %q", doc.Background)
	}

	if _, err := ParseDocument(nil); err == nil {
		t.Fatalf("expected error for empty document")
	}
}

func TestEffectiveScaleDefaults(t *testing.T) {
	obj := Object{Width: 40, Height: 20}
	if obj.EffectiveScaleX() != 1 || obj.EffectiveScaleY() != 1 {
		t.Fatalf("zero scale should default to 1")
	}
	if obj.BoundingWidth() != 40 || obj.BoundingHeight() != 20 {
		t.Fatalf("bounding box wrong: %v x %v", obj.BoundingWidth(), obj.BoundingHeight())
	}
}
