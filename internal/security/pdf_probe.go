package security

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrSizeUnknown はレスポンスからサイズを判定できない場合に返す。
var ErrSizeUnknown = errors.New("content length unknown")

// PDFProber は外部にホストされたPDFのファイルサイズをHEADリクエストで取得する。
type PDFProber struct {
	client   *http.Client
	validate func(string) error
}

// NewPDFProber はSSRF対策済みクライアントを使うPDFProberを生成する。
func NewPDFProber(timeout time.Duration) *PDFProber {
	return &PDFProber{
		client:   NewSafeClient(timeout),
		validate: ValidateOutboundURL,
	}
}

// Probe はURLのContent-Lengthを返す。
// 2xx以外の応答とContent-Lengthのない応答はエラーになる。
func (p *PDFProber) Probe(ctx context.Context, rawURL string) (int64, error) {
	if p.validate != nil {
		if err := p.validate(rawURL); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build probe request: %w", err)
	}
	req.Header.Set("User-Agent", "sitepress/1.0 (+pdf-size-probe)")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "pdf") && !strings.Contains(ct, "octet-stream") {
		return 0, fmt.Errorf("unexpected content type: %s", ct)
	}
	if resp.ContentLength < 0 {
		return 0, ErrSizeUnknown
	}
	return resp.ContentLength, nil
}
