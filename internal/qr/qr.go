package qr

import (
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	minSize = 100
	maxSize = 1000
)

// LandingURL 拼出带收件人令牌的落地页地址。
func LandingURL(frontendBaseURL, campaignID, token string) string {
	base := strings.TrimRight(strings.TrimSpace(frontendBaseURL), "/")
	return fmt.Sprintf("%s/c/%s?r=%s", base, url.PathEscape(campaignID), url.QueryEscape(token))
}

// GeneratePNG 生成落地页地址的 QR 码 PNG。尺寸夹在 [100, 1000] 像素。
func GeneratePNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("qr content is empty")
	}
	if size < minSize {
		size = minSize
	}
	if size > maxSize {
		size = maxSize
	}

	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
