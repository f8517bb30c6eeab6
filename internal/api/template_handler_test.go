package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"droplab/internal/database"
	"droplab/internal/personalize"
)

const demoTemplateJSON = `{
	"background": "#ffffff",
	"objects": [
		{"type": "textbox", "text": "Hi {first_name}, visit {city}!", "left": 10, "top": 20, "width": 400, "height": 60},
		{"type": "rect", "left": 0, "top": 0, "width": 100, "height": 100, "fill": "#ff0000"},
		{"type": "textbox", "text": "Your code expires on {expiry_date}", "left": 10, "top": 100, "width": 400, "height": 40}
	]
}`

func TestGetVariables_SortedAndLocated(t *testing.T) {
	db := newTestDB(t)

	tpl := database.Template{
		Title:     "Demo",
		Content:   datatypes.JSON([]byte(demoTemplateJSON)),
		FormatKey: "postcard_4x6",
		UserID:    7,
	}
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}

	h := NewTemplateHandler(db)
	c, w := newAuthedContext(t, http.MethodGet, "/v1/templates/1/variables", nil, 7)
	c.Params = append(c.Params, gin.Param{Key: "id", Value: "1"})
	h.GetVariables(c)

	mustStatus(t, w, http.StatusOK)
	var resp struct {
		Variables []personalize.TemplateVariable `json:"variables"`
	}
	decodeJSONBody(t, w, &resp)

	fields := make([]string, 0, len(resp.Variables))
	for _, v := range resp.Variables {
		fields = append(fields, v.Field)
	}
	want := []string{"city", "expiry_date", "first_name"}
	if len(fields) != len(want) {
		t.Fatalf("fields = %v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Fatalf("fields = %v, want %v", fields, want)
		}
	}
}

func TestGetVariables_ForbiddenForOtherUser(t *testing.T) {
	db := newTestDB(t)

	tpl := database.Template{
		Title:     "Private",
		Content:   datatypes.JSON([]byte(demoTemplateJSON)),
		FormatKey: "postcard_4x6",
		UserID:    7,
		IsPublic:  false,
	}
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}

	h := NewTemplateHandler(db)
	c, w := newAuthedContext(t, http.MethodGet, "/v1/templates/1/variables", nil, 99)
	c.Params = append(c.Params, gin.Param{Key: "id", Value: "1"})
	h.GetVariables(c)

	mustStatus(t, w, http.StatusForbidden)
}

func TestDownloadSampleCSV(t *testing.T) {
	db := newTestDB(t)

	tpl := database.Template{
		Title:     "Demo",
		Content:   datatypes.JSON([]byte(demoTemplateJSON)),
		FormatKey: "postcard_4x6",
		UserID:    7,
	}
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}

	h := NewTemplateHandler(db)
	c, w := newAuthedContext(t, http.MethodGet, "/v1/templates/1/sample-csv", nil, 7)
	c.Params = append(c.Params, gin.Param{Key: "id", Value: "1"})
	h.DownloadSampleCSV(c)

	mustStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 sample rows, got %d lines: %q", len(lines), body)
	}
	if strings.TrimSpace(lines[0]) != "city,expiry_date,first_name" {
		t.Errorf("header = %q", lines[0])
	}
}

func TestResizeTemplate_ScalePersists(t *testing.T) {
	db := newTestDB(t)

	tpl := database.Template{
		Title:     "Demo",
		Content:   datatypes.JSON([]byte(demoTemplateJSON)),
		FormatKey: "postcard_4x6",
		UserID:    7,
	}
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}

	h := NewTemplateHandler(db)
	c, w := newAuthedContext(t, http.MethodPost, "/v1/templates/1/resize", map[string]any{
		"target_format": "postcard_6x9",
		"strategy":      "scale",
		"persist":       true,
	}, 7)
	c.Params = append(c.Params, gin.Param{Key: "id", Value: "1"})
	h.ResizeTemplate(c)

	mustStatus(t, w, http.StatusOK)
	var resp resizeTemplateResponse
	decodeJSONBody(t, w, &resp)
	if resp.Applied != "scale" {
		t.Errorf("applied = %q, want scale", resp.Applied)
	}
	if resp.FormatKey != "postcard_6x9" {
		t.Errorf("format = %q", resp.FormatKey)
	}

	var reloaded database.Template
	if err := db.First(&reloaded, tpl.ID).Error; err != nil {
		t.Fatalf("reload template: %v", err)
	}
	if reloaded.FormatKey != "postcard_6x9" {
		t.Errorf("persisted format = %q, want postcard_6x9", reloaded.FormatKey)
	}
}

func TestCreateTemplate_RejectsUnknownFormat(t *testing.T) {
	db := newTestDB(t)
	h := NewTemplateHandler(db)

	c, w := newAuthedContext(t, http.MethodPost, "/v1/templates", map[string]any{
		"title":      "Bad",
		"content":    map[string]any{"objects": []any{}},
		"format_key": "a0_poster",
	}, 7)
	h.CreateTemplate(c)

	mustStatus(t, w, http.StatusBadRequest)
}
