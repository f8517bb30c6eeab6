package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"droplab/internal/canvas"
	"droplab/internal/storage"
)

// inlineAssets 在渲染前把引用 MinIO 对象的 image 对象替换为 data URI。
// 无头浏览器没有 MinIO 凭据，不能直接加载私有对象。
// 返回缺失的对象 key 列表；对象不存在只移除对应图片，不影响整批任务。
func inlineAssets(ctx context.Context, store *storage.Client, doc *canvas.Document, ownerID uint) ([]string, error) {
	var missing []string
	prefix := fmt.Sprintf("design-assets/%d/", ownerID)

	for i := range doc.Objects {
		obj := &doc.Objects[i]
		if obj.Kind() != canvas.KindImage {
			continue
		}

		raw, ok := obj.Extra["src"]
		if !ok {
			continue
		}
		var src string
		if err := json.Unmarshal(raw, &src); err != nil {
			continue
		}
		objectKey := strings.TrimSpace(src)
		// 只内联归属当前用户的设计素材；data/http URI 原样保留。
		if !strings.HasPrefix(objectKey, prefix) {
			continue
		}

		dataURI, err := fetchAsDataURI(ctx, store, objectKey)
		if err != nil {
			if storage.IsNoSuchKey(err) {
				missing = append(missing, objectKey)
				delete(obj.Extra, "src")
				continue
			}
			return missing, fmt.Errorf("inline asset %s: %w", objectKey, err)
		}

		encoded, err := json.Marshal(dataURI)
		if err != nil {
			return missing, fmt.Errorf("encode asset src: %w", err)
		}
		obj.Extra["src"] = json.RawMessage(encoded)
	}

	return missing, nil
}

func fetchAsDataURI(ctx context.Context, store *storage.Client, objectKey string) (string, error) {
	obj, err := store.GetObject(ctx, objectKey)
	if err != nil {
		return "", err
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		return "", err
	}
	contentType := strings.TrimSpace(stat.ContentType)
	if contentType == "" {
		contentType = "image/png"
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data)), nil
}
