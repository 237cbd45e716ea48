package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/sitepress/internal/content"
	"github.com/hitoshi/sitepress/internal/model"
)

// --- モック定義 ---

// mockContentService はContentServiceInterfaceのモック実装。
type mockContentService[T, D, In any] struct {
	listFn      func(ctx context.Context, viewer *model.Identity, q content.ListQuery) (*content.Page[T], error)
	getBySlugFn func(ctx context.Context, viewer *model.Identity, slug string) (D, error)
	getByIDFn   func(ctx context.Context, viewer *model.Identity, id string) (T, error)
	createFn    func(ctx context.Context, viewer *model.Identity, in In) (T, error)
	updateFn    func(ctx context.Context, viewer *model.Identity, id string, in In) (T, error)
	deleteFn    func(ctx context.Context, viewer *model.Identity, id string) error
	facetFn     func(ctx context.Context, name string) ([]string, error)
}

func (m *mockContentService[T, D, In]) List(ctx context.Context, viewer *model.Identity, q content.ListQuery) (*content.Page[T], error) {
	if m.listFn != nil {
		return m.listFn(ctx, viewer, q)
	}
	return &content.Page[T]{Items: []T{}, Page: 1, Limit: content.DefaultLimit}, nil
}

func (m *mockContentService[T, D, In]) GetBySlug(ctx context.Context, viewer *model.Identity, slug string) (D, error) {
	if m.getBySlugFn != nil {
		return m.getBySlugFn(ctx, viewer, slug)
	}
	var zero D
	return zero, model.NewNotFoundError("Content")
}

func (m *mockContentService[T, D, In]) GetByID(ctx context.Context, viewer *model.Identity, id string) (T, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, viewer, id)
	}
	var zero T
	return zero, model.NewNotFoundError("Content")
}

func (m *mockContentService[T, D, In]) Create(ctx context.Context, viewer *model.Identity, in In) (T, error) {
	if m.createFn != nil {
		return m.createFn(ctx, viewer, in)
	}
	var zero T
	return zero, nil
}

func (m *mockContentService[T, D, In]) Update(ctx context.Context, viewer *model.Identity, id string, in In) (T, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, viewer, id, in)
	}
	var zero T
	return zero, nil
}

func (m *mockContentService[T, D, In]) Delete(ctx context.Context, viewer *model.Identity, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, viewer, id)
	}
	return nil
}

func (m *mockContentService[T, D, In]) Facet(ctx context.Context, name string) ([]string, error) {
	if m.facetFn != nil {
		return m.facetFn(ctx, name)
	}
	return []string{}, nil
}

type mockArticleService = mockContentService[*model.Article, *content.ArticleDetail, content.ArticleInput]

func newArticleHandler(svc *mockArticleService) *ContentHandler[*model.Article, *content.ArticleDetail, content.ArticleInput] {
	return NewContentHandler[*model.Article, *content.ArticleDetail, content.ArticleInput](svc, "category")
}

// --- GET /api/{family} ---

func TestContentHandler_List_ParsesQuery(t *testing.T) {
	published := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := &mockArticleService{
		listFn: func(ctx context.Context, viewer *model.Identity, q content.ListQuery) (*content.Page[*model.Article], error) {
			if viewer != nil {
				t.Errorf("viewer = %+v, want nil", viewer)
			}
			want := content.ListQuery{Status: "draft", Facet: "engineering", Tag: "go", Search: "chi", Page: 2, Limit: 5}
			if q != want {
				t.Errorf("query = %+v, want %+v", q, want)
			}
			a := &model.Article{}
			a.ID = "a1"
			a.Slug = "hello"
			a.PublishedAt = &published
			return &content.Page[*model.Article]{Items: []*model.Article{a}, Total: 6, Page: 2, Limit: 5, TotalPages: 2}, nil
		},
	}
	h := newArticleHandler(svc)

	req := httptest.NewRequest(http.MethodGet,
		"/api/articles?status=draft&category=engineering&tag=go&search=chi&page=2&limit=5", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var data struct {
		Items      []map[string]any `json:"items"`
		Pagination pagination       `json:"pagination"`
	}
	decodeData(t, decodeEnvelope(t, w), &data)
	if len(data.Items) != 1 || data.Items[0]["slug"] != "hello" {
		t.Errorf("items = %+v", data.Items)
	}
	want := pagination{Page: 2, Limit: 5, Total: 6, TotalPages: 2}
	if data.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", data.Pagination, want)
	}
}

func TestContentHandler_List_PassesViewer(t *testing.T) {
	svc := &mockArticleService{
		listFn: func(ctx context.Context, viewer *model.Identity, q content.ListQuery) (*content.Page[*model.Article], error) {
			if viewer == nil || viewer.UserID != editorIdentity.UserID {
				t.Errorf("viewer = %+v, want editor", viewer)
			}
			return &content.Page[*model.Article]{Items: []*model.Article{}, Page: 1, Limit: 10}, nil
		},
	}
	h := newArticleHandler(svc)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/articles?status=all", nil), editorIdentity)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestContentHandler_List_InvalidPagination(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"non-numeric page", "page=abc"},
		{"zero page", "page=0"},
		{"negative limit", "limit=-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockArticleService{
				listFn: func(ctx context.Context, viewer *model.Identity, q content.ListQuery) (*content.Page[*model.Article], error) {
					called = true
					return nil, nil
				},
			}
			h := newArticleHandler(svc)

			w := httptest.NewRecorder()
			h.List(w, httptest.NewRequest(http.MethodGet, "/api/articles?"+tt.query, nil))

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if called {
				t.Error("List should not be called")
			}
		})
	}
}

func TestContentHandler_List_SearchUnsupported(t *testing.T) {
	svc := &mockArticleService{
		listFn: func(ctx context.Context, viewer *model.Identity, q content.ListQuery) (*content.Page[*model.Article], error) {
			return nil, model.NewValidationError("Search is not supported by the current storage backend",
				model.FieldError{Field: "search", Message: "not supported"})
		},
	}
	h := newArticleHandler(svc)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/articles?search=go", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- GET /api/{family}/meta/{facet} ---

func TestContentHandler_Facet(t *testing.T) {
	svc := &mockArticleService{
		facetFn: func(ctx context.Context, name string) ([]string, error) {
			if name != "categories" {
				return nil, model.NewNotFoundError("Facet")
			}
			return []string{"design", "engineering"}, nil
		},
	}
	h := newArticleHandler(svc)

	w := httptest.NewRecorder()
	h.Facet(w, withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/articles/meta/categories", nil), "facet", "categories"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var values []string
	decodeData(t, decodeEnvelope(t, w), &values)
	if len(values) != 2 || values[0] != "design" {
		t.Errorf("values = %v", values)
	}

	w = httptest.NewRecorder()
	h.Facet(w, withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/articles/meta/authors", nil), "facet", "authors"))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown facet status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// --- GET /api/{family}/{slug}, /api/{family}/id/{id} ---

func TestContentHandler_GetBySlug(t *testing.T) {
	svc := &mockArticleService{
		getBySlugFn: func(ctx context.Context, viewer *model.Identity, slug string) (*content.ArticleDetail, error) {
			a := &model.Article{}
			a.Slug = slug
			a.ViewCount = 8
			return &content.ArticleDetail{Article: a, ReadingTime: 3, Related: []*model.Article{}}, nil
		},
	}
	h := newArticleHandler(svc)

	w := httptest.NewRecorder()
	h.GetBySlug(w, withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/articles/go-tips", nil), "slug", "go-tips"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var data struct {
		Slug        string `json:"slug"`
		ViewCount   int64  `json:"viewCount"`
		ReadingTime int    `json:"readingTime"`
	}
	decodeData(t, decodeEnvelope(t, w), &data)
	if data.Slug != "go-tips" || data.ViewCount != 8 || data.ReadingTime != 3 {
		t.Errorf("data = %+v", data)
	}
}

func TestContentHandler_GetBySlug_NotFound(t *testing.T) {
	h := newArticleHandler(&mockArticleService{})

	w := httptest.NewRecorder()
	h.GetBySlug(w, withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/articles/missing", nil), "slug", "missing"))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestContentHandler_GetByID_Forbidden(t *testing.T) {
	svc := &mockArticleService{
		getByIDFn: func(ctx context.Context, viewer *model.Identity, id string) (*model.Article, error) {
			return nil, model.NewForbiddenError()
		},
	}
	h := newArticleHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/articles/id/a1", nil)
	req = withChiURLParam(withIdentity(req, editorIdentity), "id", "a1")
	w := httptest.NewRecorder()
	h.GetByID(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// --- POST/PUT/DELETE ---

func TestContentHandler_Create_NormalizesBody(t *testing.T) {
	svc := &mockArticleService{
		createFn: func(ctx context.Context, viewer *model.Identity, in content.ArticleInput) (*model.Article, error) {
			if viewer.UserID != editorIdentity.UserID {
				t.Errorf("viewer = %+v", viewer)
			}
			if in.Title == nil || *in.Title != "Hello" {
				t.Errorf("title = %v", in.Title)
			}
			if in.FeaturedImage == nil || *in.FeaturedImage != "/uploads/2025/01/a.png" {
				t.Errorf("featuredImage = %v", in.FeaturedImage)
			}
			if in.Categories == nil || len(*in.Categories) != 2 || (*in.Categories)[1] != "API" {
				t.Errorf("categories = %v", in.Categories)
			}
			if in.MetaTitle == nil || *in.MetaTitle != "Meta" {
				t.Errorf("metaTitle = %v", in.MetaTitle)
			}
			a := &model.Article{}
			a.ID = "a1"
			a.Title = *in.Title
			return a, nil
		},
	}
	h := newArticleHandler(svc)

	body := `{"title":"Hello","featured_image":"/uploads/2025/01/a.png","categories":"Go, API","meta_title":"Meta"}`
	req := withIdentity(jsonRequest(http.MethodPost, "/api/articles", body), editorIdentity)
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
}

func TestContentHandler_Create_Conflict(t *testing.T) {
	svc := &mockArticleService{
		createFn: func(ctx context.Context, viewer *model.Identity, in content.ArticleInput) (*model.Article, error) {
			return nil, model.NewConflictError("slug")
		},
	}
	h := newArticleHandler(svc)

	req := withIdentity(jsonRequest(http.MethodPost, "/api/articles", `{"title":"Dup"}`), editorIdentity)
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestContentHandler_Update_PassesID(t *testing.T) {
	svc := &mockArticleService{
		updateFn: func(ctx context.Context, viewer *model.Identity, id string, in content.ArticleInput) (*model.Article, error) {
			if id != "a1" {
				t.Errorf("id = %q, want a1", id)
			}
			if in.Status == nil || *in.Status != model.StatusPublished {
				t.Errorf("status = %v", in.Status)
			}
			if in.Content != nil {
				t.Error("content should be absent")
			}
			a := &model.Article{}
			a.ID = id
			return a, nil
		},
	}
	h := newArticleHandler(svc)

	req := jsonRequest(http.MethodPut, "/api/articles/a1", `{"status":"published"}`)
	req = withChiURLParam(withIdentity(req, editorIdentity), "id", "a1")
	w := httptest.NewRecorder()
	h.Update(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestContentHandler_Delete(t *testing.T) {
	deleted := ""
	svc := &mockArticleService{
		deleteFn: func(ctx context.Context, viewer *model.Identity, id string) error {
			deleted = id
			return nil
		},
	}
	h := newArticleHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/articles/a1", nil)
	req = withChiURLParam(withIdentity(req, adminIdentity), "id", "a1")
	w := httptest.NewRecorder()
	h.Delete(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if deleted != "a1" {
		t.Errorf("deleted = %q", deleted)
	}
}
