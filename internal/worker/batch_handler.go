package worker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"droplab/internal/canvas"
	"droplab/internal/database"
	"droplab/internal/errcode"
	"droplab/internal/layout"
	"droplab/internal/metrics"
	"droplab/internal/personalize"
	"droplab/internal/qr"
	"droplab/internal/qrtoken"
	"droplab/internal/renderer"
	"droplab/internal/storage"
	"droplab/internal/tasks"
)

const qrStampSizePx = 256

// BatchTaskHandler 负责消费批量个性化任务。
type BatchTaskHandler struct {
	db              *gorm.DB
	storage         *storage.Client
	redisClient     *redis.Client
	renderer        *renderer.Manager
	tokens          *qrtoken.Codec
	logger          *slog.Logger
	frontendBaseURL string
}

// NewBatchTaskHandler 创建任务处理器。
func NewBatchTaskHandler(
	db *gorm.DB,
	storage *storage.Client,
	redisClient *redis.Client,
	rendererManager *renderer.Manager,
	tokens *qrtoken.Codec,
	logger *slog.Logger,
	frontendBaseURL string,
) *BatchTaskHandler {
	return &BatchTaskHandler{
		db:              db,
		storage:         storage,
		redisClient:     redisClient,
		renderer:        rendererManager,
		tokens:          tokens,
		logger:          logger,
		frontendBaseURL: strings.TrimRight(strings.TrimSpace(frontendBaseURL), "/"),
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *BatchTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.BatchPersonalizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("job_id", uint64(payload.JobID)),
		slog.Uint64("campaign_id", uint64(payload.CampaignID)),
	)
	log.Info("Starting batch personalization task...")

	var job database.BatchJob
	if err := h.db.WithContext(ctx).First(&job, payload.JobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("batch job not found, skipping task")
			return nil
		}
		log.Error("query batch job failed", slog.Any("error", err))
		return err
	}

	var campaign database.Campaign
	if err := h.db.WithContext(ctx).First(&campaign, job.CampaignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("campaign not found, skipping task")
			return nil
		}
		log.Error("query campaign failed", slog.Any("error", err))
		return err
	}

	log = log.With(slog.Uint64("user_id", uint64(campaign.UserID)))

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}

		h.markFailed(context.WithoutCancel(ctx), &job, &campaign, retErr.Error())
		notify := BatchNotifyMessage{
			Status:        "error",
			CampaignID:    campaign.ID,
			JobID:         job.ID,
			CorrelationID: payload.CorrelationID,
			TotalCount:    job.RowCount,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publishBatchNotify(context.WithoutCancel(ctx), campaign.UserID, notify); err != nil {
			log.Error("publish batch error notification failed", slog.Any("error", err))
		}
	}()

	doc, rows, format, err := h.loadJobInput(&job, &campaign)
	if err != nil {
		// 输入损坏属于永久失败，重试不会改变结果。
		log.Error("batch job input invalid", slog.Any("error", err))
		h.markFailed(ctx, &job, &campaign, err.Error())
		notify := BatchNotifyMessage{
			Status:        "error",
			CampaignID:    campaign.ID,
			JobID:         job.ID,
			CorrelationID: payload.CorrelationID,
			TotalCount:    job.RowCount,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  err.Error(),
		}
		if pubErr := h.publishBatchNotify(ctx, campaign.UserID, notify); pubErr != nil {
			log.Error("publish batch error notification failed", slog.Any("error", pubErr))
		}
		return nil
	}

	missingAssets, err := inlineAssets(ctx, h.storage, doc, campaign.UserID)
	if err != nil {
		log.Error("inline design assets failed", slog.Any("error", err))
		return err
	}
	if len(missingAssets) > 0 {
		log.Warn("design assets missing, images dropped",
			slog.Int("code", errcode.ResourceMissing),
			slog.Any("keys", missingAssets))
	}

	if err := h.db.WithContext(ctx).Model(&job).Update("status", "processing").Error; err != nil {
		log.Error("mark job processing failed", slog.Any("error", err))
		return err
	}
	if err := h.db.WithContext(ctx).Model(&campaign).Update("status", "processing").Error; err != nil {
		log.Error("mark campaign processing failed", slog.Any("error", err))
		return err
	}

	completed := 0
	failed := 0

	err = personalize.Run(ctx, doc, rows, func(variants []personalize.Variant, progress personalize.Progress) error {
		for i := range variants {
			variant := &variants[i]
			if variant.Err != "" {
				failed++
				log.Warn("variant personalization failed",
					slog.Int("row", variant.Index),
					slog.String("error", variant.Err),
				)
				continue
			}
			if err := h.renderVariant(ctx, &campaign, variant, format); err != nil {
				failed++
				variant.Status = personalize.StatusFailed
				variant.Err = err.Error()
				log.Warn("variant render failed",
					slog.Int("row", variant.Index),
					slog.Any("error", err),
				)
				continue
			}
			completed++
		}

		update := map[string]any{
			"completed_count": completed,
			"failed_count":    failed,
		}
		if err := h.db.WithContext(ctx).Model(&job).Updates(update).Error; err != nil {
			return fmt.Errorf("persist chunk progress: %w", err)
		}

		notify := BatchNotifyMessage{
			Status:         "processing",
			CampaignID:     campaign.ID,
			JobID:          job.ID,
			CorrelationID:  payload.CorrelationID,
			CompletedCount: completed,
			FailedCount:    failed,
			TotalCount:     progress.Total,
			Percent:        int(progress.Percent),
			ErrorCode:      errcode.OK,
		}
		if err := h.publishBatchNotify(ctx, campaign.UserID, notify); err != nil {
			// 进度通知失败不终止批次。
			log.Warn("publish chunk progress failed", slog.Any("error", err))
		}
		return nil
	})
	if err != nil {
		log.Error("batch personalization run failed", slog.Any("error", err))
		return err
	}

	metrics.ObserveBatchRows(completed, failed)

	finalStatus := "completed"
	finalCode := errcode.OK
	finalMessage := ""
	if failed > 0 && completed == 0 {
		finalStatus = "failed"
		finalCode = errcode.SystemError
		finalMessage = fmt.Sprintf("all %d rows failed", failed)
	} else if failed > 0 {
		finalCode = errcode.PartialFailure
		finalMessage = fmt.Sprintf("%d of %d rows failed", failed, len(rows))
	}

	jobUpdate := map[string]any{
		"status":          finalStatus,
		"completed_count": completed,
		"failed_count":    failed,
		"error_message":   finalMessage,
	}
	if err := h.db.WithContext(ctx).Model(&job).Updates(jobUpdate).Error; err != nil {
		log.Error("persist final job state failed", slog.Any("error", err))
		return err
	}

	campaignUpdate := map[string]any{
		"status":          finalStatus,
		"completed_count": completed,
		"failed_count":    failed,
		"artifact_prefix": h.artifactPrefix(&campaign),
	}
	if err := h.db.WithContext(ctx).Model(&campaign).Updates(campaignUpdate).Error; err != nil {
		log.Error("persist final campaign state failed", slog.Any("error", err))
		return err
	}

	notify := BatchNotifyMessage{
		Status:         finalStatus,
		CampaignID:     campaign.ID,
		JobID:          job.ID,
		CorrelationID:  payload.CorrelationID,
		CompletedCount: completed,
		FailedCount:    failed,
		TotalCount:     len(rows),
		Percent:        100,
		ErrorCode:      finalCode,
		ErrorMessage:   finalMessage,
	}
	if err := h.publishBatchNotify(ctx, campaign.UserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("Batch personalization task completed.",
		slog.Int("completed", completed),
		slog.Int("failed", failed),
	)
	return nil
}

func (h *BatchTaskHandler) loadJobInput(job *database.BatchJob, campaign *database.Campaign) (*canvas.Document, []map[string]string, layout.Format, error) {
	format, err := layout.LookupFormat(campaign.FormatKey)
	if err != nil {
		return nil, nil, layout.Format{}, fmt.Errorf("resolve campaign format: %w", err)
	}

	doc, err := canvas.ParseDocument([]byte(campaign.Content.String()))
	if err != nil {
		return nil, nil, layout.Format{}, fmt.Errorf("parse campaign document: %w", err)
	}

	var rows []map[string]string
	if err := json.Unmarshal([]byte(job.Rows.String()), &rows); err != nil {
		return nil, nil, layout.Format{}, fmt.Errorf("decode job rows: %w", err)
	}

	if result := personalize.ValidateJob(doc, rows); !result.Valid {
		return nil, nil, layout.Format{}, fmt.Errorf("job validation failed: %s", strings.Join(result.Errors, "; "))
	}

	return doc, rows, format, nil
}

func (h *BatchTaskHandler) renderVariant(ctx context.Context, campaign *database.Campaign, variant *personalize.Variant, format layout.Format) error {
	token, err := h.tokens.Encrypt(recipientID(variant), campaign.PublicID)
	if err != nil {
		return fmt.Errorf("encrypt recipient token: %w", err)
	}

	if err := stampQR(variant.Doc, h.frontendBaseURL, campaign.PublicID, token, format); err != nil {
		return fmt.Errorf("stamp qr code: %w", err)
	}

	htmlContent, err := RenderHTML(variant.Doc, format)
	if err != nil {
		return fmt.Errorf("render variant html: %w", err)
	}

	pdfBytes, err := h.renderer.Render(ctx, htmlContent, format)
	if err != nil {
		return fmt.Errorf("render variant pdf: %w", err)
	}

	objectName := fmt.Sprintf("%s/variant-%d.pdf", h.artifactPrefix(campaign), variant.Index)
	reader := bytes.NewReader(pdfBytes)
	if _, err := h.storage.UploadFile(ctx, objectName, reader, int64(len(pdfBytes)), "application/pdf"); err != nil {
		return fmt.Errorf("upload variant pdf: %w", err)
	}
	return nil
}

func (h *BatchTaskHandler) artifactPrefix(campaign *database.Campaign) string {
	return fmt.Sprintf("campaigns/%d/%d", campaign.UserID, campaign.ID)
}

// recipientID 取收件人标识：优先显式 recipient_id 列，其次 email，
// 都没有时退化为行号，保证落地页仍可区分扫码来源。
func recipientID(variant *personalize.Variant) string {
	if id := strings.TrimSpace(variant.Row["recipient_id"]); id != "" {
		return id
	}
	if email := strings.TrimSpace(variant.Row["email"]); email != "" {
		return email
	}
	return fmt.Sprintf("row-%d", variant.Index)
}

// stampQR 在画布右下角注入二维码图片对象。
func stampQR(doc *canvas.Document, baseURL, campaignPublicID, token string, format layout.Format) error {
	landingURL := qr.LandingURL(baseURL, campaignPublicID, token)
	png, err := qr.GeneratePNG(landingURL, qrStampSizePx)
	if err != nil {
		return err
	}

	margin := float64(format.DPI) / 10
	size := float64(qrStampSizePx)
	src, _ := json.Marshal("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))

	doc.Objects = append(doc.Objects, canvas.Object{
		Type:   "image",
		Left:   float64(format.WidthPx) - size - margin,
		Top:    float64(format.HeightPx) - size - margin,
		Width:  size,
		Height: size,
		Extra: map[string]json.RawMessage{
			"src": json.RawMessage(src),
		},
	})
	return nil
}

func (h *BatchTaskHandler) markFailed(ctx context.Context, job *database.BatchJob, campaign *database.Campaign, message string) {
	if err := h.db.WithContext(ctx).Model(job).Updates(map[string]any{
		"status":        "failed",
		"error_message": message,
	}).Error; err != nil {
		h.logger.Error("mark job failed", slog.Any("error", err))
	}
	if err := h.db.WithContext(ctx).Model(campaign).Update("status", "failed").Error; err != nil {
		h.logger.Error("mark campaign failed", slog.Any("error", err))
	}
}

func (h *BatchTaskHandler) publishBatchNotify(ctx context.Context, userID uint, notify BatchNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := fmt.Sprintf("user_notify:%d", userID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
