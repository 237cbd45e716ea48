// Package content は記事・導入事例・ホワイトペーパーの業務ロジックを提供する。
//
// 3つのファミリーは一覧・取得・作成・更新・削除・ファセットという同じ操作を持ち、
// 共通部分はcoreに実装している。
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/sitepress/internal/fieldnorm"
	"github.com/hitoshi/sitepress/internal/model"
	"github.com/hitoshi/sitepress/internal/repository"
	"github.com/hitoshi/sitepress/internal/security"
)

// 一覧取得の既定値と上限。
const (
	DefaultLimit = 10
	MaxLimit     = 100

	// StatusAll は管理者・編集者がステータスで絞り込まない場合に指定する値。
	StatusAll = "all"

	relatedLimit       = 3
	maxTitleLength     = 200
	maxExcerptLength   = 500
	maxMetaTitle       = 60
	maxMetaDescription = 160
)

// Sanitizer はHTML本文のサニタイズを行う。
type Sanitizer interface {
	Sanitize(rawHTML string) string
	StripTags(raw string) string
}

// Recorder はコンテンツ操作のメトリクスを記録する。
type Recorder interface {
	RecordContentView(family string)
	RecordFacetCache(family string, hit bool)
	RecordDownload()
	RecordLead()
}

type nopRecorder struct{}

func (nopRecorder) RecordContentView(string) {}
func (nopRecorder) RecordFacetCache(string, bool) {}
func (nopRecorder) RecordDownload() {}
func (nopRecorder) RecordLead() {}

// Options は各サービスに共通の依存と設定。
type Options struct {
	Users           repository.UserRepository
	Sanitizer       Sanitizer
	Recorder        Recorder
	FacetCacheSize  int
	FacetCacheTTL   time.Duration
	UploadURLPrefix string
}

// ListQuery は一覧取得の条件。Facetはカテゴリー・業種・トピックのいずれか。
type ListQuery struct {
	Status string
	Facet  string
	Tag    string
	Search string
	Page   int
	Limit  int
}

// Page は一覧取得の結果。
type Page[T any] struct {
	Items      []T
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// SEOInput はSEOメタ情報の入力。
type SEOInput struct {
	MetaTitle       *string `json:"metaTitle"`
	MetaDescription *string `json:"metaDescription"`
	CanonicalURL    *string `json:"canonicalUrl"`
}

// MetaInput は3ファミリー共通項目の入力。nilの項目は変更しない。
// SEO項目はトップレベルとseoオブジェクトのどちらでも受け付け、トップレベルを優先する。
type MetaInput struct {
	Title  *string `json:"title"`
	Slug   *string `json:"slug"`
	Status *string `json:"status"`
	SEOInput
	SEO *SEOInput `json:"seo"`
}

func (in MetaInput) seo() SEOInput {
	out := in.SEOInput
	if in.SEO == nil {
		return out
	}
	if out.MetaTitle == nil {
		out.MetaTitle = in.SEO.MetaTitle
	}
	if out.MetaDescription == nil {
		out.MetaDescription = in.SEO.MetaDescription
	}
	if out.CanonicalURL == nil {
		out.CanonicalURL = in.SEO.CanonicalURL
	}
	return out
}

type record interface {
	Meta() *model.ContentMeta
}

// core はファミリー共通の処理を実装する。
type core[T record] struct {
	repo      repository.ContentRepository[T]
	users     repository.UserRepository
	sanitizer Sanitizer
	rec       Recorder
	cache     *FacetCache

	family       string
	resource     string
	facets       map[string]string
	newRecord    func() T
	beforeSave   func(ctx context.Context, rec T)
	uploadPrefix string
	now          func() time.Time
}

func newCore[T record](repo repository.ContentRepository[T], opts Options, family, resource string, facets map[string]string, newRecord func() T) *core[T] {
	if opts.Sanitizer == nil {
		opts.Sanitizer = security.NewContentSanitizer()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	prefix := "/" + strings.Trim(opts.UploadURLPrefix, "/")
	if prefix == "/" {
		prefix = "/uploads"
	}

	return &core[T]{
		repo:         repo,
		users:        opts.Users,
		sanitizer:    opts.Sanitizer,
		rec:          opts.Recorder,
		cache:        NewFacetCache(family, opts.FacetCacheSize, opts.FacetCacheTTL, opts.Recorder),
		family:       family,
		resource:     resource,
		facets:       facets,
		newRecord:    newRecord,
		uploadPrefix: prefix,
		now:          time.Now,
	}
}

// list は閲覧者の権限に応じてステータス条件を決め、一覧を返す。
// 匿名・ロールなしの閲覧者は常に公開済みかつ公開日時ありのものに限定される。
func (c *core[T]) list(ctx context.Context, viewer *model.Identity, q ListQuery) (*Page[T], error) {
	page := max(q.Page, 1)
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	filter := repository.ContentFilter{
		Facet:  strings.TrimSpace(q.Facet),
		Tag:    strings.TrimSpace(q.Tag),
		Search: strings.TrimSpace(q.Search),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	status := strings.ToLower(strings.TrimSpace(q.Status))
	switch {
	case !viewer.IsStaff(), status == "", status == model.StatusPublished:
		filter.PublicOnly = true
	case status == StatusAll:
	case model.ValidStatus(status):
		filter.Status = status
	default:
		return nil, model.NewValidationError("",
			model.FieldError{Field: "status", Message: "must be draft, published, archived or all"})
	}

	items, total, err := c.repo.List(ctx, filter)
	if err != nil {
		if errors.Is(err, repository.ErrUnsupported) {
			return nil, model.NewValidationError("Search is not supported by the current storage backend",
				model.FieldError{Field: "search", Message: "not supported"})
		}
		return nil, fmt.Errorf("failed to list %s: %w", c.family, err)
	}
	if items == nil {
		items = []T{}
	}

	return &Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// getBySlug はslugでレコードを取得する。公開済みなら閲覧数を1加算する。
// 非公開のレコードは管理者・編集者のプレビューにのみ返し、閲覧数は変えない。
func (c *core[T]) getBySlug(ctx context.Context, viewer *model.Identity, slug string) (T, *model.Author, error) {
	var zero T

	rec, err := c.repo.FindBySlug(ctx, slug)
	if err != nil {
		return zero, nil, c.notFoundOr(err, "find")
	}

	m := rec.Meta()
	if m.IsPublic() {
		if err := c.repo.IncrementViewCount(ctx, m.ID); err != nil {
			return zero, nil, c.notFoundOr(err, "count view of")
		}
		m.ViewCount++
		c.rec.RecordContentView(c.family)
	} else if !viewer.IsStaff() {
		return zero, nil, model.NewNotFoundError(c.resource)
	}

	return rec, c.author(ctx, m.AuthorID), nil
}

// getByID は編集用にレコードを取得する。作成者本人または管理者のみ参照できる。
func (c *core[T]) getByID(ctx context.Context, viewer *model.Identity, id string) (T, error) {
	var zero T
	if viewer == nil {
		return zero, model.NewUnauthorizedError()
	}

	rec, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return zero, c.notFoundOr(err, "find")
	}
	if !viewer.CanModify(rec.Meta().AuthorID) {
		return zero, model.NewForbiddenError()
	}
	return rec, nil
}

func (c *core[T]) create(ctx context.Context, viewer *model.Identity, in MetaInput, apply func(rec T, errs *fieldErrors)) (T, error) {
	var zero T
	if viewer == nil {
		return zero, model.NewUnauthorizedError()
	}
	if !viewer.IsStaff() {
		return zero, model.NewForbiddenError()
	}

	now := c.now().UTC()
	rec := c.newRecord()
	m := rec.Meta()

	var errs fieldErrors
	c.applyMeta(m, in, true, now, &errs)
	apply(rec, &errs)
	if err := errs.err(); err != nil {
		return zero, err
	}
	if c.beforeSave != nil {
		c.beforeSave(ctx, rec)
	}

	m.ID = uuid.NewString()
	m.AuthorID = viewer.UserID
	m.CreatedAt = now
	m.UpdatedAt = now

	if err := c.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return zero, model.NewConflictError("slug")
		}
		return zero, fmt.Errorf("failed to create %s: %w", c.family, err)
	}
	c.cache.Invalidate()

	slog.Info("content created",
		slog.String("family", c.family),
		slog.String("id", m.ID),
		slog.String("slug", m.Slug),
		slog.String("author_id", m.AuthorID),
	)
	return rec, nil
}

func (c *core[T]) update(ctx context.Context, viewer *model.Identity, id string, in MetaInput, apply func(rec T, errs *fieldErrors)) (T, error) {
	var zero T

	rec, err := c.getByID(ctx, viewer, id)
	if err != nil {
		return zero, err
	}

	now := c.now().UTC()
	m := rec.Meta()

	var errs fieldErrors
	c.applyMeta(m, in, false, now, &errs)
	apply(rec, &errs)
	if err := errs.err(); err != nil {
		return zero, err
	}
	if c.beforeSave != nil {
		c.beforeSave(ctx, rec)
	}
	m.UpdatedAt = now

	if err := c.repo.Update(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return zero, model.NewConflictError("slug")
		}
		return zero, c.notFoundOr(err, "update")
	}
	c.cache.Invalidate()

	slog.Info("content updated",
		slog.String("family", c.family),
		slog.String("id", m.ID),
		slog.String("user_id", viewer.UserID),
	)
	return rec, nil
}

func (c *core[T]) delete(ctx context.Context, viewer *model.Identity, id string) error {
	if _, err := c.getByID(ctx, viewer, id); err != nil {
		return err
	}

	if err := c.repo.Delete(ctx, id); err != nil {
		return c.notFoundOr(err, "delete")
	}
	c.cache.Invalidate()

	slog.Info("content deleted",
		slog.String("family", c.family),
		slog.String("id", id),
		slog.String("user_id", viewer.UserID),
	)
	return nil
}

// facet は公開済みレコードのファセット値を重複なし・昇順で返す。
func (c *core[T]) facet(ctx context.Context, name string) ([]string, error) {
	column, ok := c.facets[name]
	if !ok {
		return nil, model.NewNotFoundError("Facet")
	}

	if values, ok := c.cache.Get(column); ok {
		return values, nil
	}

	values, err := c.repo.FacetValues(ctx, column)
	if err != nil {
		return nil, fmt.Errorf("failed to collect %s %s: %w", c.family, column, err)
	}
	if values == nil {
		values = []string{}
	}
	c.cache.Set(column, values)
	return values, nil
}

// related は関連コンテンツを返す。
// 検索に失敗しても本体の応答は返せるよう、エラーはログに記録して空リストにする。
func (c *core[T]) related(ctx context.Context, id string, facets, tags []string) []T {
	items, err := c.repo.Related(ctx, repository.RelatedQuery{
		ExcludeID: id,
		Facets:    facets,
		Tags:      tags,
		Limit:     relatedLimit,
	})
	if err != nil {
		if errors.Is(err, repository.ErrUnsupported) {
			slog.Debug("related lookup unsupported by backend", slog.String("family", c.family))
		} else {
			slog.Warn("related lookup failed",
				slog.String("family", c.family),
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
		}
		return []T{}
	}
	if items == nil {
		return []T{}
	}
	return items
}

func (c *core[T]) author(ctx context.Context, id string) *model.Author {
	if id == "" || c.users == nil {
		return nil
	}
	user, err := c.users.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Warn("failed to load author",
				slog.String("author_id", id),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	return model.AuthorOf(user)
}

func (c *core[T]) notFoundOr(err error, action string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewNotFoundError(c.resource)
	}
	return fmt.Errorf("failed to %s %s: %w", action, c.family, err)
}

// applyMeta は共通項目の入力を検証して反映する。
// 公開日時は公開以外のステータスから公開に変わったときにのみ設定する。
func (c *core[T]) applyMeta(m *model.ContentMeta, in MetaInput, creating bool, now time.Time, errs *fieldErrors) {
	if title, ok := errs.text("title", in.Title, creating, true, 0, maxTitleLength); ok {
		m.Title = title
	}

	switch {
	case in.Slug != nil && strings.TrimSpace(*in.Slug) != "":
		m.Slug = Slugify(*in.Slug)
		if m.Slug == "" {
			errs.add("slug", "must contain letters or digits")
		}
	case creating:
		m.Slug = Slugify(m.Title)
		if m.Slug == "" && m.Title != "" {
			errs.add("slug", "could not be derived from title")
		}
	}

	prev := m.Status
	if in.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*in.Status))
		if model.ValidStatus(status) {
			m.Status = status
		} else {
			errs.add("status", "must be draft, published or archived")
		}
	} else if creating {
		m.Status = model.StatusDraft
	}
	if m.Status == model.StatusPublished && prev != model.StatusPublished {
		published := now
		m.PublishedAt = &published
	}

	seo := in.seo()
	if seo.MetaTitle != nil {
		m.SEO.MetaTitle = fieldnorm.Truncate(strings.TrimSpace(*seo.MetaTitle), maxMetaTitle)
	}
	if seo.MetaDescription != nil {
		m.SEO.MetaDescription = fieldnorm.Truncate(strings.TrimSpace(*seo.MetaDescription), maxMetaDescription)
	}
	if seo.CanonicalURL != nil {
		canonical := strings.TrimSpace(*seo.CanonicalURL)
		if canonical != "" && !absoluteHTTPURL(canonical) {
			errs.add("canonicalUrl", "must be an absolute http(s) URL")
		} else {
			m.SEO.CanonicalURL = canonical
		}
	}
}

// assetURL は画像・PDFなどのURL項目を検証する。
// 絶対URLかアップロード済みファイルのパスを受け付ける。
func (c *core[T]) assetURL(errs *fieldErrors, field string, in *string, creating, required bool) (string, bool) {
	v, ok := errs.text(field, in, creating, required, 0, 0)
	if !ok || v == "" {
		return v, ok
	}
	if absoluteHTTPURL(v) || strings.HasPrefix(v, c.uploadPrefix+"/") {
		return v, true
	}
	errs.add(field, fmt.Sprintf("must be an http(s) URL or a %s/ path", c.uploadPrefix))
	return "", false
}

func (c *core[T]) stripped(in *string) *string {
	if in == nil {
		return nil
	}
	v := c.sanitizer.StripTags(*in)
	return &v
}

// richText はHTML本文の見出しにidを付与してからサニタイズする。
func (c *core[T]) richText(errs *fieldErrors, field string, in *string, creating, required bool) (string, bool) {
	if in == nil {
		if creating && required {
			errs.add(field, "is required")
		}
		return "", false
	}
	body := strings.TrimSpace(c.sanitizer.Sanitize(EnsureHeadingIDs(*in)))
	if body == "" && required {
		errs.add(field, "is required")
		return "", false
	}
	return body, true
}

// fieldErrors は項目単位の検証エラーを集める。
type fieldErrors []model.FieldError

func (e *fieldErrors) add(field, message string) {
	*e = append(*e, model.FieldError{Field: field, Message: message})
}

func (e fieldErrors) err() error {
	if len(e) == 0 {
		return nil
	}
	return model.NewValidationError("", e...)
}

// text は文字列項目を検証する。戻り値のokがfalseの場合は反映しない。
// maxLenが0の場合は長さを検証しない。
func (e *fieldErrors) text(field string, in *string, creating, required bool, minLen, maxLen int) (string, bool) {
	if in == nil {
		if creating && required {
			e.add(field, "is required")
		}
		return "", false
	}

	v := strings.TrimSpace(*in)
	n := utf8.RuneCountInString(v)
	switch {
	case v == "" && required:
		e.add(field, "is required")
	case v == "":
		return "", true
	case minLen > 0 && (n < minLen || n > maxLen):
		e.add(field, fmt.Sprintf("must be between %d and %d characters", minLen, maxLen))
	case maxLen > 0 && n > maxLen:
		e.add(field, fmt.Sprintf("must be at most %d characters", maxLen))
	default:
		return v, true
	}
	return "", false
}

// list はリスト項目を正規化する。作成時に未指定の場合は空リストにする。
func list(in *fieldnorm.StringList, creating bool) ([]string, bool) {
	if in == nil {
		if creating {
			return []string{}, true
		}
		return nil, false
	}
	return fieldnorm.Strings([]string(*in)), true
}

func absoluteHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
