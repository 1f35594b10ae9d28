package objectstore

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"EduLink/internal/config"
	"EduLink/internal/modules/material/domain/material"
	"EduLink/pkg/zlog"

	"go.uber.org/zap"
)

// Client 对象存储客户端（兼容 Cloudinary 风格的 HTTP API）：
// 上传走 unsigned preset，删除走 HMAC-SHA1 签名接口
type Client struct {
	baseURL      string
	cloudName    string
	uploadPreset string
	apiKey       string
	apiSecret    string
	httpClient   *http.Client
}

// UploadResult 上传成功后的定位信息；PublicId 用于后续删除补偿
type UploadResult struct {
	SecureURL string `json:"secure_url"`
	PublicId  string `json:"public_id"`
}

func NewClient(conf config.ObjectStoreConfig) *Client {
	timeout := time.Duration(conf.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(conf.BaseURL, "/"),
		cloudName:    conf.CloudName,
		uploadPreset: conf.UploadPreset,
		apiKey:       conf.APIKey,
		apiSecret:    conf.APISecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Upload 以 multipart 表单上传原始字节，返回可下载地址与 public_id
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (*UploadResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, &material.TransientIOError{Op: "objectstore.upload", Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return nil, &material.TransientIOError{Op: "objectstore.upload", Err: err}
	}
	_ = writer.WriteField("upload_preset", c.uploadPreset)
	if err := writer.Close(); err != nil {
		return nil, &material.TransientIOError{Op: "objectstore.upload", Err: err}
	}

	endpoint := fmt.Sprintf("%s/v1_1/%s/raw/upload", c.baseURL, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, &material.TransientIOError{Op: "objectstore.upload", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &material.TransientIOError{Op: "objectstore.upload", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &material.TransientIOError{Op: "objectstore.upload", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &material.TransientIOError{
			Op:  "objectstore.upload",
			Err: fmt.Errorf("上传接口返回 %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &material.TransientIOError{Op: "objectstore.upload", Err: err}
	}
	if result.SecureURL == "" || result.PublicId == "" {
		return nil, &material.TransientIOError{
			Op:  "objectstore.upload",
			Err: fmt.Errorf("上传响应缺少 secure_url/public_id"),
		}
	}
	return &result, nil
}

// Delete 签名删除，用于上传事务的补偿动作；幂等：not found 视为成功
func (c *Client) Delete(ctx context.Context, publicId string) error {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := c.sign(map[string]string{
		"public_id": publicId,
		"timestamp": timestamp,
	})

	form := url.Values{}
	form.Set("public_id", publicId)
	form.Set("timestamp", timestamp)
	form.Set("api_key", c.apiKey)
	form.Set("signature", signature)

	endpoint := fmt.Sprintf("%s/v1_1/%s/raw/destroy", c.baseURL, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &material.TransientIOError{Op: "objectstore.delete", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &material.TransientIOError{Op: "objectstore.delete", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return &material.TransientIOError{
			Op:  "objectstore.delete",
			Err: fmt.Errorf("删除接口返回 %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}
	return nil
}

// Download 拉取 blob 内容，最多尝试 3 次（1s/2s/4s 退避），单次受客户端超时约束
func (c *Client) Download(ctx context.Context, blobURL string) ([]byte, error) {
	var lastErr error
	backoff := time.Second
	for attempt := 1; attempt <= 3; attempt++ {
		data, err := c.downloadOnce(ctx, blobURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
		zlog.Warn("blob 下载失败，准备重试",
			zap.String("url", blobURL), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < 3 {
			select {
			case <-ctx.Done():
				return nil, &material.TransientIOError{Op: "objectstore.download", Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, &material.TransientIOError{Op: "objectstore.download", Err: lastErr}
}

func (c *Client) downloadOnce(ctx context.Context, blobURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, blobURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下载返回 %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// sign 参数按 key 字典序拼接后做 HMAC-SHA1
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	mac := hmac.New(sha1.New, []byte(c.apiSecret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
