package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"droplab/internal/api/middleware"
	"droplab/internal/canvas"
	"droplab/internal/database"
	"droplab/internal/personalize"
	"droplab/internal/tasks"
)

const maxCSVBytes = 10 * 1024 * 1024

// BatchHandler 负责接收收件人 CSV 并把批量任务入队。
type BatchHandler struct {
	db          *gorm.DB
	asynqClient *asynq.Client
	logger      *slog.Logger
	clamdAddr   string
}

func NewBatchHandler(db *gorm.DB, asynqClient *asynq.Client, logger *slog.Logger, clamdAddr string) *BatchHandler {
	return &BatchHandler{
		db:          db,
		asynqClient: asynqClient,
		logger:      logger,
		clamdAddr:   clamdAddr,
	}
}

func (h *BatchHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

// UploadBatch 处理 POST /v1/campaigns/:id/batch。
// 上传的 CSV 先过病毒扫描，再做行数/列的预检，全部通过才入队。
func (h *BatchHandler) UploadBatch(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	campaignID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid campaign id")
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	var campaign database.Campaign
	if err := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", campaignID, userID).
		First(&campaign).Error; err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			NotFound(c, "campaign not found")
		default:
			Internal(c, "failed to query campaign")
		}
		return
	}

	if campaign.Status == "processing" {
		Conflict(c, "campaign already has a batch in progress")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size > maxCSVBytes {
		BadRequest(c, "csv file too large")
		return
	}

	if h.clamdAddr != "" {
		if err := h.scanUpload(file); err != nil {
			if errors.Is(err, errMaliciousFile) {
				BadRequest(c, "malicious file detected")
				return
			}
			logger.Error("scan csv failed", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
	}

	rows, err := parseRecipientCSV(file)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	doc, err := canvas.ParseDocument(campaign.Content)
	if err != nil {
		Internal(c, "failed to decode campaign document")
		return
	}

	if result := personalize.ValidateJob(doc, rows); !result.Valid {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "batch validation failed",
			"errors": result.Errors,
		})
		return
	}

	encodedRows, err := json.Marshal(rows)
	if err != nil {
		Internal(c, "failed to encode rows")
		return
	}

	job := database.BatchJob{
		CampaignID: campaign.ID,
		Rows:       datatypes.JSON(encodedRows),
		RowCount:   len(rows),
		Status:     "pending",
	}
	if err := h.db.WithContext(ctx).Create(&job).Error; err != nil {
		Internal(c, "failed to create batch job")
		return
	}

	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewBatchPersonalizeTask(job.ID, campaign.ID, correlationID)
	if err != nil {
		Internal(c, "failed to create task")
		return
	}

	info, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(5))
	if err != nil {
		logger.Error("enqueue batch task failed", slog.Any("error", err))
		Internal(c, "failed to enqueue batch job")
		return
	}

	logger.Info("batch job enqueued",
		slog.Uint64("job_id", uint64(job.ID)),
		slog.Uint64("campaign_id", uint64(campaign.ID)),
		slog.Int("rows", len(rows)),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"message": "batch personalization accepted",
		"job_id":  job.ID,
		"task_id": info.ID,
		"rows":    len(rows),
	})
}

var errMaliciousFile = errors.New("malicious file detected")

func (h *BatchHandler) scanUpload(file *multipart.FileHeader) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer reader.Close()

	clamdClient := clamd.NewClamd(h.clamdAddr)
	abortChan := make(chan bool)
	scanChan, err := clamdClient.ScanStream(reader, abortChan)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}
	defer close(abortChan)

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			return errMaliciousFile
		}
	}
	return nil
}

// parseRecipientCSV 解析收件人 CSV：首行为列名，其余每行一个收件人。
// 列名去除首尾空白；列数不一致按 RFC 4180 由 csv.Reader 报错。
func parseRecipientCSV(file *multipart.FileHeader) ([]map[string]string, error) {
	reader, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer reader.Close()

	cr := csv.NewReader(reader)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if header[i] == "" {
			return nil, fmt.Errorf("csv header column %d is empty", i+1)
		}
	}

	var rows []map[string]string
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(rows)+2, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			row[col] = record[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}
