package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/sitepress/internal/content"
	"github.com/hitoshi/sitepress/internal/middleware"
	"github.com/hitoshi/sitepress/internal/model"
)

// ContentServiceInterface はコンテンツハンドラーが必要とするサービスインターフェース。
// Tは保存形式、Dはslug指定の詳細、Inは作成・更新の入力。
type ContentServiceInterface[T, D, In any] interface {
	List(ctx context.Context, viewer *model.Identity, q content.ListQuery) (*content.Page[T], error)
	// GetBySlug は公開済みのコンテンツを返し、閲覧数を1加算する。
	// 管理者・編集者は非公開のものもプレビューできる。
	GetBySlug(ctx context.Context, viewer *model.Identity, slug string) (D, error)
	GetByID(ctx context.Context, viewer *model.Identity, id string) (T, error)
	Create(ctx context.Context, viewer *model.Identity, in In) (T, error)
	Update(ctx context.Context, viewer *model.Identity, id string, in In) (T, error)
	Delete(ctx context.Context, viewer *model.Identity, id string) error
	Facet(ctx context.Context, name string) ([]string, error)
}

// ContentHandler は記事・導入事例・ホワイトペーパーに共通するHTTPハンドラー。
type ContentHandler[T, D, In any] struct {
	service ContentServiceInterface[T, D, In]
	// facetParam は一覧の主ファセットを指定するクエリパラメータ名（category, industry, topic）。
	facetParam string
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler[T, D, In any](service ContentServiceInterface[T, D, In], facetParam string) *ContentHandler[T, D, In] {
	return &ContentHandler[T, D, In]{
		service:    service,
		facetParam: facetParam,
	}
}

// List は一覧を返す。
// GET /api/{family}?page=&limit=&status=&{facet}=&tag=&search=
func (h *ContentHandler[T, D, In]) List(w http.ResponseWriter, r *http.Request) {
	q, err := h.listQuery(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	page, err := h.service.List(r.Context(), middleware.IdentityFromContext(r.Context()), q)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, listResponse[T]{
		Items: page.Items,
		Pagination: pagination{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		},
	})
}

func (h *ContentHandler[T, D, In]) listQuery(r *http.Request) (content.ListQuery, error) {
	values := r.URL.Query()
	q := content.ListQuery{
		Status: values.Get("status"),
		Facet:  values.Get(h.facetParam),
		Tag:    values.Get("tag"),
		Search: values.Get("search"),
	}

	var fields []model.FieldError
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"page", &q.Page},
		{"limit", &q.Limit},
	} {
		raw := values.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fields = append(fields, model.FieldError{Field: p.name, Message: "must be a positive integer"})
			continue
		}
		*p.dst = n
	}
	if len(fields) > 0 {
		return q, model.NewValidationError("", fields...)
	}
	return q, nil
}

// Facet はファセットの値一覧を返す。
// GET /api/{family}/meta/{facet}
func (h *ContentHandler[T, D, In]) Facet(w http.ResponseWriter, r *http.Request) {
	values, err := h.service.Facet(r.Context(), chi.URLParam(r, "facet"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, values)
}

// GetBySlug はslug指定で詳細を返す。
// GET /api/{family}/{slug}
func (h *ContentHandler[T, D, In]) GetBySlug(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetBySlug(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, detail)
}

// GetByID は編集用にID指定で返す。
// GET /api/{family}/id/{id}
func (h *ContentHandler[T, D, In]) GetByID(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetByID(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, item)
}

// Create は新規作成する。
// POST /api/{family}
func (h *ContentHandler[T, D, In]) Create(w http.ResponseWriter, r *http.Request) {
	var in In
	if err := decodeJSON(r, &in); err != nil {
		handleServiceError(w, err)
		return
	}

	item, err := h.service.Create(r.Context(), middleware.IdentityFromContext(r.Context()), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, item)
}

// Update は部分更新する。
// PUT /api/{family}/{id}
func (h *ContentHandler[T, D, In]) Update(w http.ResponseWriter, r *http.Request) {
	var in In
	if err := decodeJSON(r, &in); err != nil {
		handleServiceError(w, err)
		return
	}

	item, err := h.service.Update(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, item)
}

// Delete は削除する。
// DELETE /api/{family}/{id}
func (h *ContentHandler[T, D, In]) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Deleted successfully")
}

// routes はファミリー共通のルートを登録する。
// 閲覧系は任意認証、編集系は認証必須で、作成のみ管理者・編集者に限定する。
func (h *ContentHandler[T, D, In]) routes(r chi.Router, verifier middleware.TokenVerifier) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalAuthMiddleware(verifier))
		r.Get("/", h.List)
		r.Get("/meta/{facet}", h.Facet)
		r.Get("/{slug}", h.GetBySlug)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(verifier))
		r.Get("/id/{id}", h.GetByID)
		r.With(middleware.RequireRole(model.RoleAdmin, model.RoleEditor)).Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}
