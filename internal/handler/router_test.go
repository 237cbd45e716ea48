package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/sitepress/internal/content"
	"github.com/hitoshi/sitepress/internal/middleware"
	"github.com/hitoshi/sitepress/internal/model"
)

// --- モック定義 ---

// mockTokenVerifier は固定のトークンだけを受け付けるTokenVerifier。
type mockTokenVerifier struct {
	identities map[string]*model.Identity
}

func (m *mockTokenVerifier) VerifyToken(ctx context.Context, token string) (*model.Identity, error) {
	if id, ok := m.identities[token]; ok {
		return id, nil
	}
	return nil, model.NewUnauthorizedError()
}

type mockWhitepaperService struct {
	mockContentService[*model.Whitepaper, *content.WhitepaperDetail, content.WhitepaperInput]
	downloadFn func(ctx context.Context, slug string, in content.LeadInput) (*content.DownloadResult, error)
}

func (m *mockWhitepaperService) Download(ctx context.Context, slug string, in content.LeadInput) (*content.DownloadResult, error) {
	if m.downloadFn != nil {
		return m.downloadFn(ctx, slug, in)
	}
	return &content.DownloadResult{PDFURL: "https://cdn.example/" + slug + ".pdf"}, nil
}

type testRouter struct {
	handler     http.Handler
	articles    *mockArticleService
	caseStudies *mockContentService[*model.CaseStudy, *content.CaseStudyDetail, content.CaseStudyInput]
	whitepapers *mockWhitepaperService
	auth        *mockAuthService
	users       *mockUserService
	uploadDir   string
}

// newTestRouter はテスト用の完全なルーターを構築する。
// 重要操作のレート制限は1IPあたり2リクエストまで。
func newTestRouter(t *testing.T) *testRouter {
	t.Helper()

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    1000,
		SensitiveRate:   0.001,
		SensitiveBurst:  2,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(limiter.Stop)

	tr := &testRouter{
		articles:    &mockArticleService{},
		caseStudies: &mockContentService[*model.CaseStudy, *content.CaseStudyDetail, content.CaseStudyInput]{},
		whitepapers: &mockWhitepaperService{},
		auth:        &mockAuthService{},
		users:       &mockUserService{},
		uploadDir:   t.TempDir(),
	}

	tr.handler = NewRouter(&RouterDeps{
		TokenVerifier: &mockTokenVerifier{identities: map[string]*model.Identity{
			"admin-token":  adminIdentity,
			"editor-token": editorIdentity,
		}},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       limiter,
		Logger:            discardLogger(),
		AuthService:       tr.auth,
		UserService:       tr.users,
		ArticleService:    tr.articles,
		CaseStudyService:  tr.caseStudies,
		WhitepaperService: tr.whitepapers,
		Site:              SiteInfo{Name: "Acme", BaseURL: "https://acme.example"},
		UploadStore: &mockUploadStore{
			putFn: func(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
				return "/uploads/" + key, nil
			},
		},
		UploadMaxBytes: 1 << 20,
		StaticDir:      tr.uploadDir,
		StaticPrefix:   "/uploads",
		Health:         &mockPinger{},
		Environment:    "test",
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "# HELP sitepress_downloads_total\n")
		}),
	})
	return tr
}

func (tr *testRouter) do(method, target, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = jsonRequest(method, target, body)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, req)
	return w
}

// --- 公開ルート ---

func TestRouter_PublicList_NoAuthRequired(t *testing.T) {
	tr := newTestRouter(t)

	for _, path := range []string{"/api/articles", "/api/case-studies", "/api/whitepapers"} {
		w := tr.do(http.MethodGet, path, "", "")
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestRouter_SecurityAndCORSHeaders(t *testing.T) {
	tr := newTestRouter(t)

	w := tr.do(http.MethodGet, "/api/health", "", "")
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRouter_Preflight(t *testing.T) {
	tr := newTestRouter(t)

	w := tr.do(http.MethodOptions, "/api/articles", "", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Errorf("Access-Control-Allow-Headers = %q", w.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestRouter_OptionalAuthWidensViewer(t *testing.T) {
	tr := newTestRouter(t)
	var viewers []*model.Identity
	tr.articles.listFn = func(ctx context.Context, viewer *model.Identity, q content.ListQuery) (*content.Page[*model.Article], error) {
		viewers = append(viewers, viewer)
		return &content.Page[*model.Article]{Items: []*model.Article{}, Page: 1, Limit: 10}, nil
	}

	tr.do(http.MethodGet, "/api/articles?status=all", "", "")
	tr.do(http.MethodGet, "/api/articles?status=all", "editor-token", "")
	w := tr.do(http.MethodGet, "/api/articles?status=all", "forged-token", "")

	if w.Code != http.StatusOK {
		t.Errorf("invalid token status = %d, want %d", w.Code, http.StatusOK)
	}
	if len(viewers) != 3 {
		t.Fatalf("calls = %d, want 3", len(viewers))
	}
	if viewers[0] != nil || viewers[2] != nil {
		t.Errorf("anonymous viewers = %+v, %+v", viewers[0], viewers[2])
	}
	if viewers[1] == nil || viewers[1].Role != model.RoleEditor {
		t.Errorf("editor viewer = %+v", viewers[1])
	}
}

func TestRouter_StaticRoutesBeforeSlug(t *testing.T) {
	tr := newTestRouter(t)
	var facet, slug string
	tr.articles.facetFn = func(ctx context.Context, name string) ([]string, error) {
		facet = name
		return []string{"go"}, nil
	}
	tr.articles.getBySlugFn = func(ctx context.Context, viewer *model.Identity, s string) (*content.ArticleDetail, error) {
		slug = s
		return &content.ArticleDetail{Article: &model.Article{}}, nil
	}

	w := tr.do(http.MethodGet, "/api/articles/rss", "", "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "application/rss+xml") {
		t.Errorf("rss status = %d, content-type = %q", w.Code, w.Header().Get("Content-Type"))
	}

	tr.do(http.MethodGet, "/api/articles/meta/tags", "", "")
	if facet != "tags" {
		t.Errorf("facet = %q, want tags", facet)
	}

	tr.do(http.MethodGet, "/api/articles/hello-world", "", "")
	if slug != "hello-world" {
		t.Errorf("slug = %q, want hello-world", slug)
	}
}

// --- 認証・ロール ---

func TestRouter_ContentWritesRequireAuth(t *testing.T) {
	tr := newTestRouter(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/articles"},
		{http.MethodPut, "/api/case-studies/cs1"},
		{http.MethodDelete, "/api/whitepapers/wp1"},
		{http.MethodGet, "/api/articles/id/a1"},
		{http.MethodPost, "/api/uploads"},
		{http.MethodGet, "/api/auth/me"},
	}
	for _, tt := range tests {
		w := tr.do(tt.method, tt.path, "", `{}`)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestRouter_CreateByEditor(t *testing.T) {
	tr := newTestRouter(t)
	tr.articles.createFn = func(ctx context.Context, viewer *model.Identity, in content.ArticleInput) (*model.Article, error) {
		a := &model.Article{}
		a.ID = "a1"
		a.AuthorID = viewer.UserID
		return a, nil
	}

	w := tr.do(http.MethodPost, "/api/articles", "editor-token", `{"title":"Hello"}`)
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
}

func TestRouter_AdminOnlyRoutes(t *testing.T) {
	tr := newTestRouter(t)

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/api/auth/register", `{"email":"x@example.com"}`},
		{http.MethodGet, "/api/users", ""},
		{http.MethodPut, "/api/users/u2", `{"role":"admin"}`},
		{http.MethodDelete, "/api/users/u2", ""},
	}
	for _, tt := range tests {
		if w := tr.do(tt.method, tt.path, "editor-token", tt.body); w.Code != http.StatusForbidden {
			t.Errorf("editor %s %s status = %d, want %d", tt.method, tt.path, w.Code, http.StatusForbidden)
		}
		if w := tr.do(tt.method, tt.path, "admin-token", tt.body); w.Code >= 400 {
			t.Errorf("admin %s %s status = %d", tt.method, tt.path, w.Code)
		}
	}
}

// --- レート制限 ---

func TestRouter_LoginRateLimited(t *testing.T) {
	tr := newTestRouter(t)

	body := `{"email":"a@example.com","password":"wrong-password"}`
	for i := 0; i < 2; i++ {
		if w := tr.do(http.MethodPost, "/api/auth/login", "", body); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want %d", i+1, w.Code, http.StatusUnauthorized)
		}
	}

	w := tr.do(http.MethodPost, "/api/auth/login", "", body)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if env := decodeEnvelope(t, w); env.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", env.Code, model.ErrCodeRateLimited)
	}
}

func TestRouter_Download(t *testing.T) {
	tr := newTestRouter(t)
	var got content.LeadInput
	tr.whitepapers.downloadFn = func(ctx context.Context, slug string, in content.LeadInput) (*content.DownloadResult, error) {
		if slug != "cloud-guide" {
			t.Errorf("slug = %q", slug)
		}
		got = in
		return &content.DownloadResult{PDFURL: "https://cdn.example/cloud-guide.pdf"}, nil
	}

	w := tr.do(http.MethodPost, "/api/whitepapers/cloud-guide/download", "",
		`{"email":"lead@example.com","first_name":"Ken","job_title":"CTO"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got.Email != "lead@example.com" || got.FirstName != "Ken" || got.JobTitle != "CTO" {
		t.Errorf("lead = %+v", got)
	}

	var data content.DownloadResult
	decodeData(t, decodeEnvelope(t, w), &data)
	if data.PDFURL != "https://cdn.example/cloud-guide.pdf" {
		t.Errorf("pdfUrl = %q", data.PDFURL)
	}
}

func TestRouter_DownloadGatedWithoutEmail(t *testing.T) {
	tr := newTestRouter(t)
	tr.whitepapers.downloadFn = func(ctx context.Context, slug string, in content.LeadInput) (*content.DownloadResult, error) {
		return nil, model.NewValidationError("", model.FieldError{Field: "email", Message: "is required"})
	}

	w := tr.do(http.MethodPost, "/api/whitepapers/cloud-guide/download", "", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- 運用・静的ファイル ---

func TestRouter_HealthAndMetrics(t *testing.T) {
	tr := newTestRouter(t)

	if w := tr.do(http.MethodGet, "/api/health", "", ""); w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}

	w := tr.do(http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "sitepress_downloads_total") {
		t.Errorf("metrics status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	tr := newTestRouter(t)

	w := tr.do(http.MethodGet, "/api/nope/really", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if env := decodeEnvelope(t, w); env.Code != model.ErrCodeNotFound {
		t.Errorf("code = %q", env.Code)
	}
}

func TestRouter_ServesUploads(t *testing.T) {
	tr := newTestRouter(t)
	if err := os.WriteFile(filepath.Join(tr.uploadDir, "logo.png"), pngBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	w := tr.do(http.MethodGet, "/uploads/logo.png", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
