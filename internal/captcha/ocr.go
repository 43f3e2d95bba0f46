package captcha

import (
	"context"
	"fmt"
	"strings"
	"time"

	"seller-market/internal/api"
	"seller-market/internal/interfaces"
	"seller-market/internal/logger"
)

const DefaultPath = "/ocr/captcha-easy-base64"

var _ interfaces.CaptchaDecoder = (*OCRClient)(nil)

// OCRClient decodes captcha images with an external OCR service that
// accepts {"base64": ...} and answers with the text.
type OCRClient struct {
	http *api.Client
	url  string
}

func NewOCRClient(baseURL, path string, timeout time.Duration) *OCRClient {
	if path == "" {
		path = DefaultPath
	}
	return &OCRClient{
		http: api.NewClient(
			api.WithTimeout(timeout),
			api.WithHeader("Accept", "text/plain"),
		),
		url: strings.TrimRight(baseURL, "/") + path,
	}
}

type ocrRequest struct {
	Base64 string `json:"base64"`
}

// Decode returns the text read from the image. An empty string means the
// service could not read it; transport failures are returned as errors.
func (o *OCRClient) Decode(ctx context.Context, imageBase64 string) (string, error) {
	resp, err := o.http.POST(ctx, o.url, ocrRequest{Base64: imageBase64})
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	text := strings.TrimSpace(resp.String())
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		text = text[1 : len(text)-1]
	}
	logger.Debug(ctx, "Captcha decoded", "length", len(text))
	return text, nil
}
