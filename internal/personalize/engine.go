package personalize

import (
	"context"
	"fmt"
	"time"

	"droplab/internal/canvas"
)

// 分块大小是调优常量，不暴露给调用方配置。
const chunkSize = 50

// 每个分块之间让出一小段时间，避免长批次饿死同进程内的其他工作。
const chunkPause = 5 * time.Millisecond

// VariantStatus 表示单个收件人变体的处理状态。
type VariantStatus string

const (
	StatusPending    VariantStatus = "pending"
	StatusProcessing VariantStatus = "processing"
	StatusCompleted  VariantStatus = "completed"
	StatusFailed     VariantStatus = "failed"
)

// Variant 是一行数据对应的个性化输出。
// 失败时 Doc 为 nil，Err 记录原因，批次继续。
type Variant struct {
	Index  int
	Row    map[string]string
	Doc    *canvas.Document
	Status VariantStatus
	Err    string
}

// Progress 描述批次的累计进度。
type Progress struct {
	Completed   int     `json:"completed"`
	Total       int     `json:"total"`
	Percent     float64 `json:"percent"`
	Chunk       int     `json:"chunk"`
	TotalChunks int     `json:"total_chunks"`
}

// Personalize 对模板文档应用一行数据：深拷贝文档，
// 替换每个文本类对象的内容，并丢弃字符级样式覆写。
// 输入文档永远不会被修改。
func Personalize(doc *canvas.Document, row map[string]string) (*canvas.Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil template document")
	}

	out := doc.Clone()
	for i := range out.Objects {
		obj := &out.Objects[i]
		if obj.Kind() != canvas.KindTextLike {
			continue
		}
		obj.Text = Substitute(obj.Text, row)
		// 替换后文本长度已变化，按偏移索引的样式覆写全部失效，必须丢弃。
		obj.Styles = nil
		delete(obj.Extra, "styles")
	}
	return out, nil
}

// ChunkFunc 在每个分块完成后被调用一次，携带该分块的变体与累计进度。
type ChunkFunc func(chunk []Variant, progress Progress) error

// Run 按固定分块处理整个数据集。单行失败只影响该行的变体；
// fn 返回错误或 ctx 取消会终止批次。
func Run(ctx context.Context, doc *canvas.Document, rows []map[string]string, fn ChunkFunc) error {
	total := len(rows)
	totalChunks := (total + chunkSize - 1) / chunkSize
	completed := 0

	for chunkIdx := 0; chunkIdx < totalChunks; chunkIdx++ {
		start := chunkIdx * chunkSize
		end := start + chunkSize
		if end > total {
			end = total
		}

		chunk := make([]Variant, 0, end-start)
		for i := start; i < end; i++ {
			chunk = append(chunk, personalizeRow(doc, i, rows[i]))
		}
		completed += len(chunk)

		progress := Progress{
			Completed:   completed,
			Total:       total,
			Percent:     float64(completed) / float64(total) * 100,
			Chunk:       chunkIdx,
			TotalChunks: totalChunks,
		}
		if fn != nil {
			if err := fn(chunk, progress); err != nil {
				return err
			}
		}

		if chunkIdx+1 < totalChunks {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(chunkPause):
			}
		}
	}
	return nil
}

func personalizeRow(doc *canvas.Document, index int, row map[string]string) (v Variant) {
	v = Variant{Index: index, Row: row, Status: StatusProcessing}

	defer func() {
		if r := recover(); r != nil {
			v.Doc = nil
			v.Status = StatusFailed
			v.Err = fmt.Sprintf("row %d: %v", index, r)
		}
	}()

	out, err := Personalize(doc, row)
	if err != nil {
		v.Status = StatusFailed
		v.Err = err.Error()
		return v
	}
	v.Doc = out
	v.Status = StatusCompleted
	return v
}
