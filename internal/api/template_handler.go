package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"droplab/internal/canvas"
	"droplab/internal/database"
	"droplab/internal/layout"
	"droplab/internal/personalize"
)

// TemplateHandler 负责设计模板相关的 API。
type TemplateHandler struct {
	db *gorm.DB
}

func NewTemplateHandler(db *gorm.DB) *TemplateHandler {
	return &TemplateHandler{db: db}
}

type createTemplateRequest struct {
	Title           string         `json:"title" binding:"required"`
	Content         datatypes.JSON `json:"content" binding:"required"`
	FormatKey       string         `json:"format_key" binding:"required"`
	PreviewImageURL *string        `json:"preview_image_url"`
	// 目前创建默认私有，若后续需要开放，可增加 IsPublic 入参并严格校验
}

type templateListItem struct {
	ID              uint      `json:"id"`
	Title           string    `json:"title"`
	FormatKey       string    `json:"format_key"`
	PreviewImageURL string    `json:"preview_image_url,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type templateDetailResponse struct {
	ID              uint           `json:"id"`
	Title           string         `json:"title"`
	Content         datatypes.JSON `json:"content"`
	FormatKey       string         `json:"format_key"`
	PreviewImageURL string         `json:"preview_image_url,omitempty"`
}

// POST /v1/templates
// 创建模板：默认私有，Owner 为当前用户。
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	if _, err := layout.LookupFormat(req.FormatKey); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if _, err := canvas.ParseDocument(req.Content); err != nil {
		BadRequest(c, "content is not a valid design document")
		return
	}

	model := database.Template{
		Title:     req.Title,
		Content:   req.Content,
		FormatKey: req.FormatKey,
		UserID:    userID,
		IsPublic:  false,
	}
	if req.PreviewImageURL != nil {
		model.PreviewImageURL = *req.PreviewImageURL
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&model).Error; err != nil {
		Internal(c, "failed to create template")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":    model.ID,
		"title": model.Title,
	})
}

// GET /v1/templates
// 列表：返回当前用户模板 ∪ 所有公开模板（去重由主键自然保证）。
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var templates []database.Template
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ? OR is_public = ?", userID, true).
		Order("updated_at DESC").
		Find(&templates).Error; err != nil {
		Internal(c, "failed to list templates")
		return
	}

	items := make([]templateListItem, 0, len(templates))
	for _, t := range templates {
		items = append(items, templateListItem{
			ID:              t.ID,
			Title:           t.Title,
			FormatKey:       t.FormatKey,
			PreviewImageURL: t.PreviewImageURL,
			UpdatedAt:       t.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, items)
}

// GET /v1/templates/:id
// 详情：允许 Owner 访问，或公开模板允许任何已登录用户访问。
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	model, ok := h.templateForRead(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, templateDetailResponse{
		ID:              model.ID,
		Title:           model.Title,
		Content:         model.Content,
		FormatKey:       model.FormatKey,
		PreviewImageURL: model.PreviewImageURL,
	})
}

// PUT /v1/templates/:id
// 更新：仅 Owner。
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	if _, err := layout.LookupFormat(req.FormatKey); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if _, err := canvas.ParseDocument(req.Content); err != nil {
		BadRequest(c, "content is not a valid design document")
		return
	}

	model, ok := h.templateForWrite(c)
	if !ok {
		return
	}

	updates := map[string]any{
		"title":      req.Title,
		"content":    req.Content,
		"format_key": req.FormatKey,
	}
	if req.PreviewImageURL != nil {
		updates["preview_image_url"] = *req.PreviewImageURL
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Model(model).Updates(updates).Error; err != nil {
		Internal(c, "failed to update template")
		return
	}
	if err := h.db.WithContext(ctx).First(model, model.ID).Error; err != nil {
		Internal(c, "failed to reload template")
		return
	}

	c.JSON(http.StatusOK, templateDetailResponse{
		ID:              model.ID,
		Title:           model.Title,
		Content:         model.Content,
		FormatKey:       model.FormatKey,
		PreviewImageURL: model.PreviewImageURL,
	})
}

// DELETE /v1/templates/:id
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	model, ok := h.templateForWrite(c)
	if !ok {
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Delete(&database.Template{}, model.ID).Error; err != nil {
		Internal(c, "failed to delete template")
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /v1/templates/:id/variables
// 扫描模板文本并返回检测到的变量（字段名、展示标签、示例值、出现位置）。
func (h *TemplateHandler) GetVariables(c *gin.Context) {
	model, ok := h.templateForRead(c)
	if !ok {
		return
	}

	doc, err := canvas.ParseDocument(model.Content)
	if err != nil {
		Internal(c, "failed to decode template document")
		return
	}

	variables := personalize.DetectVariables(doc)
	c.JSON(http.StatusOK, gin.H{"variables": variables})
}

// GET /v1/templates/:id/sample-csv
// 下载带示例数据的 CSV，列即模板中的变量。
func (h *TemplateHandler) DownloadSampleCSV(c *gin.Context) {
	model, ok := h.templateForRead(c)
	if !ok {
		return
	}

	doc, err := canvas.ParseDocument(model.Content)
	if err != nil {
		Internal(c, "failed to decode template document")
		return
	}

	variables := personalize.DetectVariables(doc)
	if len(variables) == 0 {
		BadRequest(c, "template has no variables")
		return
	}

	data, err := personalize.SampleCSV(variables)
	if err != nil {
		Internal(c, "failed to build sample csv")
		return
	}

	filename := fmt.Sprintf("template-%d-sample.csv", model.ID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

type resizeTemplateRequest struct {
	TargetFormat string `json:"target_format" binding:"required"`
	Strategy     string `json:"strategy"`
	Persist      bool   `json:"persist"`
}

type resizeTemplateResponse struct {
	Content     datatypes.JSON `json:"content"`
	FormatKey   string         `json:"format_key"`
	Strategy    string         `json:"strategy"`
	Applied     string         `json:"applied"`
	OutOfBounds []int          `json:"out_of_bounds,omitempty"`
}

// POST /v1/templates/:id/resize
// 把模板重排到另一种打印格式。未指定策略时按启发式推荐。
func (h *TemplateHandler) ResizeTemplate(c *gin.Context) {
	var req resizeTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	model, ok := h.templateForWrite(c)
	if !ok {
		return
	}

	current, err := layout.LookupFormat(model.FormatKey)
	if err != nil {
		Internal(c, "template has an unknown print format")
		return
	}
	target, err := layout.LookupFormat(req.TargetFormat)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	doc, err := canvas.ParseDocument(model.Content)
	if err != nil {
		Internal(c, "failed to decode template document")
		return
	}

	strategy := layout.Strategy(req.Strategy)
	if req.Strategy == "" {
		strategy = layout.RecommendStrategy(current, target)
	}

	result, err := layout.Resize(doc, current, target, strategy, layout.Options{
		MaintainAspectRatio: true,
		CenterContent:       true,
	})
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	encoded, err := canvas.EncodeDocument(result.Doc)
	if err != nil {
		Internal(c, "failed to encode resized document")
		return
	}

	if req.Persist {
		updates := map[string]any{
			"content":    datatypes.JSON(encoded),
			"format_key": target.Key,
		}
		if err := h.db.WithContext(c.Request.Context()).Model(model).Updates(updates).Error; err != nil {
			Internal(c, "failed to persist resized template")
			return
		}
	}

	c.JSON(http.StatusOK, resizeTemplateResponse{
		Content:     datatypes.JSON(encoded),
		FormatKey:   target.Key,
		Strategy:    string(result.Strategy),
		Applied:     string(result.Applied),
		OutOfBounds: result.OutOfBounds,
	})
}

// ListFormats 返回支持的打印格式。
func ListFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"formats": layout.Formats()})
}

func (h *TemplateHandler) templateForRead(c *gin.Context) (*database.Template, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid template id")
		return nil, false
	}

	var model database.Template
	if err := h.db.WithContext(c.Request.Context()).First(&model, id).Error; err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			NotFound(c, "template not found")
		default:
			Internal(c, "failed to query template")
		}
		return nil, false
	}

	if model.UserID != userID && !model.IsPublic {
		Forbidden(c, "access denied")
		return nil, false
	}
	return &model, true
}

func (h *TemplateHandler) templateForWrite(c *gin.Context) (*database.Template, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid template id")
		return nil, false
	}

	var model database.Template
	if err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		First(&model).Error; err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			NotFound(c, "template not found")
		default:
			Internal(c, "failed to query template")
		}
		return nil, false
	}
	return &model, true
}
