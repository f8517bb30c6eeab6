package personalize

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

const sampleRowCount = 3

// SampleCSV 根据检测到的变量生成可下载的示例 CSV：
// 表头为字段名，随后三行轮换的示例数据。引号转义遵循 RFC 4180。
func SampleCSV(vars []TemplateVariable) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(vars))
	for i, v := range vars {
		header[i] = v.Field
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(vars))
	for r := 0; r < sampleRowCount; r++ {
		for i, v := range vars {
			row[i] = sampleValue(v.Field, r)
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", r, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
