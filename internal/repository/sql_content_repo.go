package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hitoshi/sitepress/internal/fieldnorm"
	"github.com/hitoshi/sitepress/internal/model"
)

// SQLContentRepo はSQLバックエンド共通のコンテンツリポジトリ。
// テーブル定義はfamily、SQL方言はDialectで切り替える。
type SQLContentRepo[T any] struct {
	db *sql.DB
	d  *Dialect
	f  *family[T]
}

// NewSQLArticleRepo は記事リポジトリを生成する。
func NewSQLArticleRepo(db *sql.DB, d *Dialect) *SQLContentRepo[*model.Article] {
	return &SQLContentRepo[*model.Article]{db: db, d: d, f: articleFamily}
}

// NewSQLCaseStudyRepo は導入事例リポジトリを生成する。
func NewSQLCaseStudyRepo(db *sql.DB, d *Dialect) *SQLContentRepo[*model.CaseStudy] {
	return &SQLContentRepo[*model.CaseStudy]{db: db, d: d, f: caseStudyFamily}
}

// SQLWhitepaperRepo はダウンロード数カウンタを持つホワイトペーパーリポジトリ。
type SQLWhitepaperRepo struct {
	*SQLContentRepo[*model.Whitepaper]
}

// NewSQLWhitepaperRepo はホワイトペーパーリポジトリを生成する。
func NewSQLWhitepaperRepo(db *sql.DB, d *Dialect) *SQLWhitepaperRepo {
	return &SQLWhitepaperRepo{&SQLContentRepo[*model.Whitepaper]{db: db, d: d, f: whitepaperFamily}}
}

// IncrementDownloadCount はダウンロード数をアトミックに1加算する。
func (r *SQLWhitepaperRepo) IncrementDownloadCount(ctx context.Context, id string) error {
	return r.increment(ctx, id, "download_count")
}

func (r *SQLContentRepo[T]) selectColumns() string {
	cols := make([]string, 0, len(sharedColumns)+len(r.f.columns)+1+len(r.f.counterColumns))
	cols = append(cols, sharedColumns...)
	cols = append(cols, r.f.columns...)
	cols = append(cols, "view_count")
	cols = append(cols, r.f.counterColumns...)
	return strings.Join(cols, ", ")
}

func (r *SQLContentRepo[T]) scan(row rowScanner) (T, error) {
	rec := r.f.newRecord()
	m := r.f.meta(rec)

	var authorID sql.NullString
	var publishedAt sql.NullTime
	dest := []any{
		&m.ID, &m.Title, &m.Slug, &authorID, &m.Status, &publishedAt,
		&m.SEO.MetaTitle, &m.SEO.MetaDescription, &m.SEO.CanonicalURL, &m.CreatedAt, &m.UpdatedAt,
	}
	dest = append(dest, r.f.targets(rec)...)
	dest = append(dest, &m.ViewCount)
	if r.f.counterTargets != nil {
		dest = append(dest, r.f.counterTargets(rec)...)
	}

	if err := row.Scan(dest...); err != nil {
		var zero T
		return zero, err
	}

	m.AuthorID = authorID.String
	m.PublishedAt = timePtr(publishedAt)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return rec, nil
}

func (r *SQLContentRepo[T]) sharedValues(m *model.ContentMeta) []any {
	return []any{
		m.ID, m.Title, m.Slug, nullString(m.AuthorID), m.Status, nullTime(m.PublishedAt),
		m.SEO.MetaTitle, m.SEO.MetaDescription, m.SEO.CanonicalURL, m.CreatedAt.UTC(), m.UpdatedAt.UTC(),
	}
}

func (r *SQLContentRepo[T]) applyFilter(q *queryBuilder, filter ContentFilter) {
	if filter.PublicOnly {
		q.where("status = " + q.arg(model.StatusPublished))
		q.where("published_at IS NOT NULL")
	} else if filter.Status != "" {
		q.where("status = " + q.arg(filter.Status))
	}
	if filter.Facet != "" {
		q.where(r.d.contains(r.f.primaryFacet, q.arg(filter.Facet)))
	}
	if filter.Tag != "" {
		q.where(r.d.contains("tags", q.arg(filter.Tag)))
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		ors := make([]string, 0, len(r.f.searchColumns))
		for _, col := range r.f.searchColumns {
			ors = append(ors, r.d.search(col, q.arg(pattern)))
		}
		q.where("(" + strings.Join(ors, " OR ") + ")")
	}
}

const orderByPublished = " ORDER BY published_at DESC NULLS LAST, created_at DESC"

// List は条件に一致するレコードと総件数を返す。
func (r *SQLContentRepo[T]) List(ctx context.Context, filter ContentFilter) ([]T, int, error) {
	q := newQueryBuilder(r.d)
	r.applyFilter(q, filter)

	var total int
	countSQL := "SELECT COUNT(*) FROM " + r.f.table + q.whereSQL()
	if err := r.db.QueryRowContext(ctx, countSQL, q.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count %s: %w", r.f.table, err)
	}

	listSQL := "SELECT " + r.selectColumns() + " FROM " + r.f.table + q.whereSQL() + orderByPublished
	if filter.Limit > 0 {
		listSQL += " LIMIT " + q.arg(filter.Limit) + " OFFSET " + q.arg(filter.Offset)
	}

	items, err := r.query(ctx, listSQL, q.args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *SQLContentRepo[T]) query(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.f.table, err)
	}
	defer rows.Close()

	items := make([]T, 0)
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", r.f.table, err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", r.f.table, err)
	}
	return items, nil
}

func (r *SQLContentRepo[T]) findOne(ctx context.Context, column, value string) (T, error) {
	var zero T
	query := "SELECT " + r.selectColumns() + " FROM " + r.f.table +
		" WHERE " + column + " = " + r.d.placeholder(1)

	rec, err := r.scan(r.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to find %s by %s: %w", r.f.table, column, err)
	}
	return rec, nil
}

// FindByID は指定IDのレコードを取得する。
func (r *SQLContentRepo[T]) FindByID(ctx context.Context, id string) (T, error) {
	if !validID(id) {
		var zero T
		return zero, ErrNotFound
	}
	return r.findOne(ctx, "id", id)
}

// FindBySlug はslugでレコードを取得する。
func (r *SQLContentRepo[T]) FindBySlug(ctx context.Context, slug string) (T, error) {
	return r.findOne(ctx, "slug", slug)
}

// Create はレコードを作成する。
func (r *SQLContentRepo[T]) Create(ctx context.Context, rec T) error {
	cols := append(append([]string{}, sharedColumns...), r.f.columns...)
	args := append(r.sharedValues(r.f.meta(rec)), r.f.values(r.d, rec)...)

	query := "INSERT INTO " + r.f.table + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		placeholders(r.d, len(cols)) + ")"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if r.d.uniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert into %s: %w", r.f.table, err)
	}
	return nil
}

// Update はカウンタ以外の項目を更新する。IDと作成日時は変更しない。
func (r *SQLContentRepo[T]) Update(ctx context.Context, rec T) error {
	m := r.f.meta(rec)
	if !validID(m.ID) {
		return ErrNotFound
	}

	q := newQueryBuilder(r.d)
	sets := make([]string, 0, len(sharedColumns)+len(r.f.columns))
	shared := r.sharedValues(m)
	for i, col := range sharedColumns {
		if col == "id" || col == "created_at" {
			continue
		}
		sets = append(sets, col+" = "+q.arg(shared[i]))
	}
	for i, v := range r.f.values(r.d, rec) {
		sets = append(sets, r.f.columns[i]+" = "+q.arg(v))
	}

	query := "UPDATE " + r.f.table + " SET " + strings.Join(sets, ", ") + " WHERE id = " + q.arg(m.ID)
	result, err := r.db.ExecContext(ctx, query, q.args...)
	if err != nil {
		if r.d.uniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to update %s: %w", r.f.table, err)
	}
	return requireAffected(result)
}

// Delete は指定IDのレコードを物理削除する。
func (r *SQLContentRepo[T]) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM "+r.f.table+" WHERE id = "+r.d.placeholder(1), id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", r.f.table, err)
	}
	return requireAffected(result)
}

// IncrementViewCount は閲覧数をアトミックに1加算する。
func (r *SQLContentRepo[T]) IncrementViewCount(ctx context.Context, id string) error {
	return r.increment(ctx, id, "view_count")
}

func (r *SQLContentRepo[T]) increment(ctx context.Context, id, column string) error {
	if !validID(id) {
		return ErrNotFound
	}
	query := fmt.Sprintf("UPDATE %s SET %s = %s + 1 WHERE id = %s", r.f.table, column, column, r.d.placeholder(1))
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment %s.%s: %w", r.f.table, column, err)
	}
	return requireAffected(result)
}

// Related は主ファセットまたはタグを共有する公開済みレコードを返す。
func (r *SQLContentRepo[T]) Related(ctx context.Context, rq RelatedQuery) ([]T, error) {
	if len(rq.Facets) == 0 && len(rq.Tags) == 0 {
		return make([]T, 0), nil
	}

	q := newQueryBuilder(r.d)
	q.where("status = " + q.arg(model.StatusPublished))
	q.where("published_at IS NOT NULL")
	if rq.ExcludeID != "" {
		q.where("id <> " + q.arg(rq.ExcludeID))
	}
	q.where("(" + r.d.overlaps(r.f.primaryFacet, q.arg(r.d.list(rq.Facets))) +
		" OR " + r.d.overlaps("tags", q.arg(r.d.list(rq.Tags))) + ")")

	query := "SELECT " + r.selectColumns() + " FROM " + r.f.table + q.whereSQL() + orderByPublished
	if rq.Limit > 0 {
		query += " LIMIT " + q.arg(rq.Limit)
	}
	return r.query(ctx, query, q.args...)
}

// FacetValues は公開済みレコードのリスト列の値を重複なし・昇順で返す。
func (r *SQLContentRepo[T]) FacetValues(ctx context.Context, column string) ([]string, error) {
	if !r.f.hasListColumn(column) {
		return nil, fmt.Errorf("%s has no list column %q", r.f.table, column)
	}

	query := "SELECT " + column + " FROM " + r.f.table +
		" WHERE status = " + r.d.placeholder(1) + " AND published_at IS NOT NULL"
	rows, err := r.db.QueryContext(ctx, query, model.StatusPublished)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s.%s: %w", r.f.table, column, err)
	}
	defer rows.Close()

	var lists [][]string
	for rows.Next() {
		var values fieldnorm.StringList
		if err := rows.Scan(&values); err != nil {
			return nil, fmt.Errorf("failed to scan %s.%s: %w", r.f.table, column, err)
		}
		lists = append(lists, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s.%s: %w", r.f.table, column, err)
	}
	return unionSorted(lists), nil
}

// unionSorted は複数のリストを重複なしで結合し昇順に並べる。
func unionSorted(lists [][]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var (
	_ ArticleRepository    = (*SQLContentRepo[*model.Article])(nil)
	_ CaseStudyRepository  = (*SQLContentRepo[*model.CaseStudy])(nil)
	_ WhitepaperRepository = (*SQLWhitepaperRepo)(nil)
)
