package personalize

import (
	"fmt"
	"strings"

	"droplab/internal/canvas"
)

// 行数上下限是产品约束，不反映任何技术上限。
const (
	minBatchRows = 10
	maxBatchRows = 10000
)

// ValidationResult 是预检结果，错误以结构化方式返回而不是抛出。
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateJob 在批次开始前做一次性预检：
// 文档非空、数据非空、模板需要的列都存在于首行、行数落在允许区间。
func ValidateJob(doc *canvas.Document, rows []map[string]string) ValidationResult {
	var errs []string

	if doc == nil || len(doc.Objects) == 0 {
		errs = append(errs, "template document has no objects")
	}

	if len(rows) == 0 {
		errs = append(errs, "no data rows provided")
		return ValidationResult{Valid: false, Errors: errs}
	}

	if len(rows) < minBatchRows {
		errs = append(errs, fmt.Sprintf("Too few rows: got %d, minimum is %d", len(rows), minBatchRows))
	}
	if len(rows) > maxBatchRows {
		errs = append(errs, fmt.Sprintf("Too many rows: got %d, maximum is %d", len(rows), maxBatchRows))
	}

	if doc != nil {
		var missing []string
		first := rows[0]
		for _, v := range DetectVariables(doc) {
			if _, ok := first[v.Field]; !ok {
				missing = append(missing, v.Field)
			}
		}
		if len(missing) > 0 {
			errs = append(errs, "missing CSV columns: "+strings.Join(missing, ", "))
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
