package personalize

import (
	"bytes"
	"encoding/csv"
	"reflect"
	"strings"
	"testing"

	"droplab/internal/canvas"
)

func testDoc() *canvas.Document {
	return &canvas.Document{
		Objects: []canvas.Object{
			{Type: "textbox", Text: "Hi {firstName} {lastName}"},
			{Type: "rect", Width: 10, Height: 10},
			{Type: "i-text", Text: "Visit us in {city}, {firstName}!"},
			{Type: "image"},
		},
	}
}

func TestDetectVariables(t *testing.T) {
	vars := DetectVariables(testDoc())

	fields := make([]string, len(vars))
	for i, v := range vars {
		fields[i] = v.Field
	}
	// 按字段名排序。
	want := []string{"city", "firstName", "lastName"}
	if !reflect.DeepEqual(fields, want) {
		t.Fatalf("fields = %v, want %v", fields, want)
	}

	byField := map[string]TemplateVariable{}
	for _, v := range vars {
		byField[v.Field] = v
	}
	if got := byField["firstName"].Locations; !reflect.DeepEqual(got, []int{0, 2}) {
		t.Fatalf("firstName locations = %v, want [0 2]", got)
	}
	if byField["firstName"].Label != "First Name" {
		t.Fatalf("label = %q, want %q", byField["firstName"].Label, "First Name")
	}
	if byField["city"].Sample != "Austin" {
		t.Fatalf("city sample = %q", byField["city"].Sample)
	}
}

func TestDetectVariables_Deterministic(t *testing.T) {
	doc := testDoc()
	first := DetectVariables(doc)
	for i := 0; i < 10; i++ {
		if got := DetectVariables(doc); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %v vs %v", i, got, first)
		}
	}
}

func TestDetectVariables_Empty(t *testing.T) {
	doc := &canvas.Document{Objects: []canvas.Object{
		{Type: "textbox", Text: "no variables"},
		{Type: "rect"},
	}}
	if vars := DetectVariables(doc); len(vars) != 0 {
		t.Fatalf("expected empty result, got %v", vars)
	}
}

func TestHumanize(t *testing.T) {
	cases := map[string]string{
		"firstName":     "First Name",
		"first_name":    "First Name",
		"city":          "City",
		"offer_amount":  "Offer Amount",
		"customerEmail": "Customer Email",
		"ZIPCode":       "ZIPCode",
	}
	for in, want := range cases {
		if got := Humanize(in); got != want {
			t.Errorf("Humanize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSampleValue_Fallback(t *testing.T) {
	if got := sampleValue("favorite_topping", 0); got != "Favorite Topping" {
		t.Fatalf("fallback = %q", got)
	}
	if got := sampleValue("email", 0); !strings.Contains(got, "@") {
		t.Fatalf("email sample = %q", got)
	}
}

func TestSampleCSV(t *testing.T) {
	vars := DetectVariables(&canvas.Document{Objects: []canvas.Object{
		{Type: "textbox", Text: `Hi {firstName}, use code {promo_code,} in {city}`},
	}})
	// promo_code, 不是合法 token，不应该被检出。
	data, err := SampleCSV(vars)
	if err != nil {
		t.Fatalf("SampleCSV: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse generated csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(records))
	}
	if !reflect.DeepEqual(records[0], []string{"city", "firstName"}) {
		t.Fatalf("header = %v", records[0])
	}
	// 相邻两行示例值应轮换。
	if records[1][0] == records[2][0] {
		t.Fatalf("sample rows do not rotate: %v vs %v", records[1], records[2])
	}
}
