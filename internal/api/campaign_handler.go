package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"droplab/internal/canvas"
	"droplab/internal/database"
	"droplab/internal/layout"
	"droplab/internal/storage"
)

// CampaignHandler 负责投递活动相关的 API。
// 活动持有模板内容的快照，后续模板修改不影响已创建的活动。
type CampaignHandler struct {
	db           *gorm.DB
	storage      *storage.Client
	maxCampaigns int
}

func NewCampaignHandler(db *gorm.DB, storageClient *storage.Client, maxCampaigns int) *CampaignHandler {
	return &CampaignHandler{
		db:           db,
		storage:      storageClient,
		maxCampaigns: maxCampaigns,
	}
}

type createCampaignRequest struct {
	Title      string `json:"title" binding:"required"`
	TemplateID uint   `json:"template_id" binding:"required"`
}

type campaignResponse struct {
	ID             uint           `json:"id"`
	PublicID       string         `json:"public_id"`
	Title          string         `json:"title"`
	FormatKey      string         `json:"format_key"`
	Status         string         `json:"status"`
	CompletedCount int            `json:"completed_count"`
	FailedCount    int            `json:"failed_count"`
	Content        datatypes.JSON `json:"content,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func newCampaignResponse(m database.Campaign, withContent bool) campaignResponse {
	resp := campaignResponse{
		ID:             m.ID,
		PublicID:       m.PublicID,
		Title:          m.Title,
		FormatKey:      m.FormatKey,
		Status:         m.Status,
		CompletedCount: m.CompletedCount,
		FailedCount:    m.FailedCount,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if withContent {
		resp.Content = m.Content
	}
	return resp
}

// POST /v1/campaigns
// 创建活动：从模板快照内容，超过限额则提示升级。
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	var count int64
	if err := h.db.WithContext(ctx).
		Model(&database.Campaign{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		Internal(c, "failed to count campaigns")
		return
	}
	if h.maxCampaigns > 0 && count >= int64(h.maxCampaigns) {
		Forbidden(c, "campaign limit reached")
		return
	}

	var template database.Template
	if err := h.db.WithContext(ctx).
		Where("id = ? AND (user_id = ? OR is_public = ?)", req.TemplateID, userID, true).
		First(&template).Error; err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			NotFound(c, "template not found")
		default:
			Internal(c, "failed to query template")
		}
		return
	}

	campaign := database.Campaign{
		PublicID:  "pc_" + uuid.NewString(),
		Title:     req.Title,
		Content:   template.Content,
		FormatKey: template.FormatKey,
		Status:    "draft",
		UserID:    userID,
	}
	if err := h.db.WithContext(ctx).Create(&campaign).Error; err != nil {
		Internal(c, "failed to create campaign")
		return
	}

	c.JSON(http.StatusCreated, newCampaignResponse(campaign, false))
}

// GET /v1/campaigns
func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var campaigns []database.Campaign
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&campaigns).Error; err != nil {
		Internal(c, "failed to list campaigns")
		return
	}

	items := make([]campaignResponse, 0, len(campaigns))
	for _, m := range campaigns {
		items = append(items, newCampaignResponse(m, false))
	}
	c.JSON(http.StatusOK, items)
}

// GET /v1/campaigns/:id
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	campaign, ok := h.campaignForUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newCampaignResponse(*campaign, true))
}

type updateCampaignRequest struct {
	Title     string         `json:"title" binding:"required"`
	Content   datatypes.JSON `json:"content" binding:"required"`
	FormatKey string         `json:"format_key" binding:"required"`
}

// PUT /v1/campaigns/:id
// 仅草稿状态可编辑，处理中或已完成的活动内容不可变。
func (h *CampaignHandler) UpdateCampaign(c *gin.Context) {
	var req updateCampaignRequest
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

	campaign, ok := h.campaignForUser(c)
	if !ok {
		return
	}
	if campaign.Status != "draft" && campaign.Status != "failed" {
		Conflict(c, "campaign is no longer editable")
		return
	}

	ctx := c.Request.Context()
	updates := map[string]any{
		"title":      req.Title,
		"content":    req.Content,
		"format_key": req.FormatKey,
	}
	if err := h.db.WithContext(ctx).Model(campaign).Updates(updates).Error; err != nil {
		Internal(c, "failed to update campaign")
		return
	}
	if err := h.db.WithContext(ctx).First(campaign, campaign.ID).Error; err != nil {
		Internal(c, "failed to reload campaign")
		return
	}

	c.JSON(http.StatusOK, newCampaignResponse(*campaign, true))
}

// DELETE /v1/campaigns/:id
// 同步清理 MinIO 中已生成的变体文件。
func (h *CampaignHandler) DeleteCampaign(c *gin.Context) {
	campaign, ok := h.campaignForUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	prefix := fmt.Sprintf("campaigns/%d/%d/", campaign.UserID, campaign.ID)
	if err := h.storage.DeletePrefix(ctx, prefix); err != nil {
		Internal(c, "failed to delete campaign artifacts")
		return
	}

	if err := h.db.WithContext(ctx).Delete(&database.Campaign{}, campaign.ID).Error; err != nil {
		Internal(c, "failed to delete campaign")
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /v1/campaigns/:id/artifacts
// 列出已生成的变体 PDF 并附带预签名下载链接。
func (h *CampaignHandler) ListArtifacts(c *gin.Context) {
	campaign, ok := h.campaignForUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	prefix := fmt.Sprintf("campaigns/%d/%d/", campaign.UserID, campaign.ID)
	objects, err := h.storage.ListObjects(ctx, prefix, 10000)
	if err != nil {
		Internal(c, "failed to list artifacts")
		return
	}

	items := make([]gin.H, 0, len(objects))
	for _, obj := range objects {
		url, err := h.storage.GeneratePresignedURL(ctx, obj.Key, 15*time.Minute)
		if err != nil {
			continue
		}
		items = append(items, gin.H{
			"objectKey":    obj.Key,
			"downloadUrl":  url,
			"size":         obj.Size,
			"lastModified": obj.LastModified,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *CampaignHandler) campaignForUser(c *gin.Context) (*database.Campaign, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid campaign id")
		return nil, false
	}

	var campaign database.Campaign
	if err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		First(&campaign).Error; err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			NotFound(c, "campaign not found")
		default:
			Internal(c, "failed to query campaign")
		}
		return nil, false
	}
	return &campaign, true
}
