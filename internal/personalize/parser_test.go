package personalize

import (
	"reflect"
	"testing"
)

func TestExtractFields(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"Hi {firstName}, you're in {city}!", []string{"firstName", "city"}},
		{"{a} {b} {a}", []string{"a", "b"}},
		{"no tokens here", nil},
		{"", nil},
		{"{bad name} {good_name}", []string{"good_name"}},
		{"{Outer{inner}}", []string{"inner"}},
		{"{FirstName} vs {firstname}", []string{"FirstName", "firstname"}},
		{"{offer_amount_2024}", []string{"offer_amount_2024"}},
	}
	for _, tc := range cases {
		if got := ExtractFields(tc.text); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ExtractFields(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestSubstitute(t *testing.T) {
	row := map[string]string{"firstName": "Sam", "city": "Austin"}

	got := Substitute("Hi {firstName}, you're in {city}!", row)
	if got != "Hi Sam, you're in Austin!" {
		t.Fatalf("got %q", got)
	}

	// 缺失字段替换为空串，不报错。
	got = Substitute("Hello {missing}!", row)
	if got != "Hello !" {
		t.Fatalf("missing field: got %q", got)
	}

	if got := Substitute("plain text", row); got != "plain text" {
		t.Fatalf("plain text changed: %q", got)
	}
}

func TestExtraction_IndependentOfRowValues(t *testing.T) {
	text := "Hi {firstName} from {city}"
	before := ExtractFields(text)

	Substitute(text, map[string]string{"firstName": "{city}", "city": "X"})

	after := ExtractFields(text)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("extraction changed: %v vs %v", before, after)
	}
}
