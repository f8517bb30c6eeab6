package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"droplab/internal/database"
	"droplab/internal/qrtoken"
)

// LandingHandler 解析扫码访客携带的收件人令牌。
// 这是面向匿名访客的端点：无论令牌是否有效都返回 200，
// 失败时退化为无个性化的通用页面数据，绝不向访客暴露错误。
type LandingHandler struct {
	db     *gorm.DB
	tokens *qrtoken.Codec
	logger *slog.Logger
}

func NewLandingHandler(db *gorm.DB, tokens *qrtoken.Codec, logger *slog.Logger) *LandingHandler {
	return &LandingHandler{
		db:     db,
		tokens: tokens,
		logger: logger,
	}
}

type landingResponse struct {
	CampaignID   string `json:"campaign_id"`
	Title        string `json:"title,omitempty"`
	Personalized bool   `json:"personalized"`
	RecipientID  string `json:"recipient_id,omitempty"`
}

// Resolve 处理 GET /v1/landing/:campaignID?r=token。
func (h *LandingHandler) Resolve(c *gin.Context) {
	campaignPublicID := strings.TrimSpace(c.Param("campaignID"))

	resp := landingResponse{
		CampaignID:   campaignPublicID,
		Personalized: false,
	}

	var campaign database.Campaign
	err := h.db.WithContext(c.Request.Context()).
		Where("public_id = ?", campaignPublicID).
		First(&campaign).Error
	switch {
	case err == nil:
		resp.Title = campaign.Title
	case errors.Is(err, gorm.ErrRecordNotFound):
		// 活动不存在也返回通用页面，避免成为探测接口。
		c.JSON(http.StatusOK, resp)
		return
	default:
		h.logger.Error("landing campaign lookup failed", slog.Any("error", err))
		c.JSON(http.StatusOK, resp)
		return
	}

	token := strings.TrimSpace(c.Query("r"))
	if token == "" {
		c.JSON(http.StatusOK, resp)
		return
	}

	if recipientID, ok := h.tokens.Decrypt(token, campaignPublicID); ok {
		resp.Personalized = true
		resp.RecipientID = recipientID
	} else {
		h.logger.Debug("landing token rejected",
			slog.String("campaign_public_id", campaignPublicID),
		)
	}

	c.JSON(http.StatusOK, resp)
}
