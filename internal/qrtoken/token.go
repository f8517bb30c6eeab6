// Package qrtoken 实现落地页 URL 中的收件人令牌编解码。
// 令牌与 campaign 绑定：AAD 取自 campaign ID 的单向哈希截断，
// 跨 campaign 解密会因认证失败而返回无效。
package qrtoken

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TokenPrefix 是 URL 中的字面前缀，便于下游识别。
const TokenPrefix = "dl1."

const (
	keyLen      = 32
	aadLen      = 16
	nonceLen    = 12 // GCM 标准 nonce 长度
	gcmOverhead = 16 // 认证 tag
)

// DefaultTTL 是令牌默认有效期。
const DefaultTTL = 90 * 24 * time.Hour

// Codec 持有主密钥与有效期配置。
type Codec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

type payload struct {
	RecipientID string `json:"recipient_id"`
	ExpiresAt   int64  `json:"expires_at"`
}

// NewCodec 构造编解码器。key 必须是 32 字节（AES-256）。
func NewCodec(key []byte, ttl time.Duration) (*Codec, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", keyLen, len(key))
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	k := make([]byte, keyLen)
	copy(k, key)
	return &Codec{key: k, ttl: ttl, now: time.Now}, nil
}

// campaignAAD 从 campaign ID 派生认证数据：SHA-256 截断到 16 字节。
func campaignAAD(campaignID string) []byte {
	sum := sha256.Sum256([]byte(campaignID))
	return sum[:aadLen]
}

// Encrypt 为收件人生成 campaign 作用域的令牌。
// 每次调用使用新的随机 nonce，输出 nonce||ciphertext 的 base64url 编码加前缀。
func (c *Codec) Encrypt(recipientID, campaignID string) (string, error) {
	if recipientID == "" {
		return "", fmt.Errorf("recipient id is required")
	}
	if campaignID == "" {
		return "", fmt.Errorf("campaign id is required")
	}

	plain, err := json.Marshal(payload{
		RecipientID: recipientID,
		ExpiresAt:   c.now().Add(c.ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}

	aead, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, nonceLen+len(plain)+gcmOverhead)
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plain, campaignAAD(campaignID))...)

	return TokenPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

// Decrypt 解出令牌中的收件人 ID。
// 任何解码、认证或过期错误都返回 ok=false，绝不返回 error 给调用方：
// 无效扫码是预期中的良性事件，调用方应回退到非个性化页面。
func (c *Codec) Decrypt(token, campaignID string) (recipientID string, ok bool) {
	raw, decodeOK := decodeToken(token)
	if !decodeOK || len(raw) < nonceLen+gcmOverhead {
		return "", false
	}

	aead, err := c.aead()
	if err != nil {
		return "", false
	}

	plain, err := aead.Open(nil, raw[:nonceLen], raw[nonceLen:], campaignAAD(campaignID))
	if err != nil {
		return "", false
	}

	var p payload
	if err := json.Unmarshal(plain, &p); err != nil {
		return "", false
	}
	if p.RecipientID == "" {
		return "", false
	}
	if c.now().Unix() > p.ExpiresAt {
		return "", false
	}
	return p.RecipientID, true
}

// IsWellFormed 只做结构检查：可解码且长度足以容纳 nonce+tag+至少一字节密文。
// 不做任何密码学验证，可能误报有效，绝不漏报真实有效的令牌。
func IsWellFormed(token string) bool {
	raw, ok := decodeToken(token)
	return ok && len(raw) > nonceLen+gcmOverhead
}

func decodeToken(token string) ([]byte, bool) {
	token = strings.TrimPrefix(strings.TrimSpace(token), TokenPrefix)
	if token == "" {
		return nil, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (c *Codec) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return aead, nil
}
