package repository

import (
	"github.com/hitoshi/sitepress/internal/fieldnorm"
	"github.com/hitoshi/sitepress/internal/model"
)

// sharedColumns は全コンテンツ種別に共通する書き込み対象の列。
var sharedColumns = []string{
	"id", "title", "slug", "author_id", "status", "published_at",
	"meta_title", "meta_description", "canonical_url", "created_at", "updated_at",
}

// family はコンテンツ種別ごとのテーブル定義と値の受け渡し方法を表す。
type family[T any] struct {
	table string

	// columns は種別固有の書き込み対象列。counterColumns は更新対象外のカウンタ列。
	columns        []string
	counterColumns []string

	// primaryFacet は関連検索と一覧絞り込みに使う主ファセット列。
	primaryFacet  string
	listColumns   []string
	searchColumns []string

	newRecord func() T
	meta      func(T) *model.ContentMeta

	// targets と values は columns と同じ順序で並ぶ。
	targets        func(T) []any
	values         func(d *Dialect, rec T) []any
	counterTargets func(T) []any

	// listValues はファイルバックエンドでリスト列の値を取り出す。
	listValues func(rec T, column string) []string
}

func (f *family[T]) hasListColumn(column string) bool {
	for _, c := range f.listColumns {
		if c == column {
			return true
		}
	}
	return false
}

func listTarget(s *[]string) *fieldnorm.StringList {
	return (*fieldnorm.StringList)(s)
}

var articleFamily = &family[*model.Article]{
	table: "articles",
	columns: []string{
		"excerpt", "content", "featured_image", "featured_image_alt", "categories", "tags",
	},
	primaryFacet:  "categories",
	listColumns:   []string{"categories", "tags"},
	searchColumns: []string{"title", "excerpt", "content"},
	newRecord:     func() *model.Article { return &model.Article{} },
	meta:          func(a *model.Article) *model.ContentMeta { return &a.ContentMeta },
	targets: func(a *model.Article) []any {
		return []any{
			&a.Excerpt, &a.Content, &a.FeaturedImage, &a.FeaturedImageAlt,
			listTarget(&a.Categories), listTarget(&a.Tags),
		}
	},
	values: func(d *Dialect, a *model.Article) []any {
		return []any{
			a.Excerpt, a.Content, a.FeaturedImage, a.FeaturedImageAlt,
			d.list(a.Categories), d.list(a.Tags),
		}
	},
	listValues: func(a *model.Article, column string) []string {
		switch column {
		case "categories":
			return a.Categories
		case "tags":
			return a.Tags
		}
		return nil
	},
}

var caseStudyFamily = &family[*model.CaseStudy]{
	table: "case_studies",
	columns: []string{
		"client_name", "client_logo", "excerpt", "challenge", "solution",
		"results", "industries", "tags", "testimonial", "featured_image",
	},
	primaryFacet:  "industries",
	listColumns:   []string{"industries", "tags"},
	searchColumns: []string{"title", "client_name", "excerpt", "challenge"},
	newRecord:     func() *model.CaseStudy { return &model.CaseStudy{} },
	meta:          func(c *model.CaseStudy) *model.ContentMeta { return &c.ContentMeta },
	targets: func(c *model.CaseStudy) []any {
		return []any{
			&c.ClientName, &c.ClientLogo, &c.Excerpt, &c.Challenge, &c.Solution,
			fieldnorm.JSONScanner{V: &c.Results}, listTarget(&c.Industries), listTarget(&c.Tags),
			fieldnorm.JSONScanner{V: &c.Testimonial}, &c.FeaturedImage,
		}
	},
	values: func(d *Dialect, c *model.CaseStudy) []any {
		results := c.Results
		if results == nil {
			results = []model.ResultMetric{}
		}
		var testimonial any
		if c.Testimonial != nil {
			testimonial = fieldnorm.JSONValue{V: c.Testimonial}
		}
		return []any{
			c.ClientName, c.ClientLogo, c.Excerpt, c.Challenge, c.Solution,
			fieldnorm.JSONValue{V: results}, d.list(c.Industries), d.list(c.Tags),
			testimonial, c.FeaturedImage,
		}
	},
	listValues: func(c *model.CaseStudy, column string) []string {
		switch column {
		case "industries":
			return c.Industries
		case "tags":
			return c.Tags
		}
		return nil
	},
}

var whitepaperFamily = &family[*model.Whitepaper]{
	table: "whitepapers",
	columns: []string{
		"abstract", "key_takeaways", "topics", "tags", "pdf_url", "cover_image",
		"is_gated", "file_size", "page_count",
	},
	counterColumns: []string{"download_count"},
	primaryFacet:   "topics",
	listColumns:    []string{"topics", "tags"},
	searchColumns:  []string{"title", "abstract"},
	newRecord:      func() *model.Whitepaper { return &model.Whitepaper{} },
	meta:           func(w *model.Whitepaper) *model.ContentMeta { return &w.ContentMeta },
	targets: func(w *model.Whitepaper) []any {
		return []any{
			&w.Abstract, listTarget(&w.KeyTakeaways), listTarget(&w.Topics), listTarget(&w.Tags),
			&w.PDFURL, &w.CoverImage, &w.IsGated, &w.FileSize, &w.PageCount,
		}
	},
	values: func(d *Dialect, w *model.Whitepaper) []any {
		return []any{
			w.Abstract, d.list(w.KeyTakeaways), d.list(w.Topics), d.list(w.Tags),
			w.PDFURL, w.CoverImage, w.IsGated, w.FileSize, w.PageCount,
		}
	},
	counterTargets: func(w *model.Whitepaper) []any {
		return []any{&w.DownloadCount}
	},
	listValues: func(w *model.Whitepaper, column string) []string {
		switch column {
		case "topics":
			return w.Topics
		case "tags":
			return w.Tags
		}
		return nil
	},
}
