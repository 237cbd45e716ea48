package content

import (
	"context"

	"github.com/hitoshi/sitepress/internal/fieldnorm"
	"github.com/hitoshi/sitepress/internal/model"
	"github.com/hitoshi/sitepress/internal/repository"
)

// FamilyArticles は記事のファミリー名。
const FamilyArticles = "articles"

// ArticleInput は記事の作成・更新入力。
type ArticleInput struct {
	MetaInput
	Excerpt          *string               `json:"excerpt"`
	Content          *string               `json:"content"`
	FeaturedImage    *string               `json:"featuredImage"`
	FeaturedImageAlt *string               `json:"featuredImageAlt"`
	Categories       *fieldnorm.StringList `json:"categories"`
	Tags             *fieldnorm.StringList `json:"tags"`
}

// ArticleDetail はslug指定で取得した記事と派生項目。
type ArticleDetail struct {
	*model.Article
	Author          *model.Author    `json:"author"`
	ReadingTime     int              `json:"readingTime"`
	TableOfContents []Heading        `json:"tableOfContents"`
	Related         []*model.Article `json:"related"`
}

// ArticleService は記事の業務ロジックを提供する。
type ArticleService struct {
	*core[*model.Article]
}

// NewArticleService はArticleServiceを生成する。
func NewArticleService(repo repository.ArticleRepository, opts Options) *ArticleService {
	facets := map[string]string{
		"categories": "categories",
		"tags":       "tags",
	}
	return &ArticleService{
		core: newCore[*model.Article](repo, opts, FamilyArticles, "Article", facets, func() *model.Article {
			return &model.Article{}
		}),
	}
}

// List は記事一覧を返す。
func (s *ArticleService) List(ctx context.Context, viewer *model.Identity, q ListQuery) (*Page[*model.Article], error) {
	return s.list(ctx, viewer, q)
}

// GetBySlug は記事を読了時間・目次・関連記事とともに返す。
func (s *ArticleService) GetBySlug(ctx context.Context, viewer *model.Identity, slug string) (*ArticleDetail, error) {
	article, author, err := s.getBySlug(ctx, viewer, slug)
	if err != nil {
		return nil, err
	}

	return &ArticleDetail{
		Article:         article,
		Author:          author,
		ReadingTime:     ReadingTime(article.Content),
		TableOfContents: TableOfContents(article.Content),
		Related:         s.related(ctx, article.ID, article.Categories, article.Tags),
	}, nil
}

// GetByID は編集用に記事を返す。
func (s *ArticleService) GetByID(ctx context.Context, viewer *model.Identity, id string) (*model.Article, error) {
	return s.getByID(ctx, viewer, id)
}

// Create は記事を作成する。
func (s *ArticleService) Create(ctx context.Context, viewer *model.Identity, in ArticleInput) (*model.Article, error) {
	return s.create(ctx, viewer, in.MetaInput, func(a *model.Article, errs *fieldErrors) {
		s.apply(a, in, true, errs)
	})
}

// Update は記事を部分更新する。
func (s *ArticleService) Update(ctx context.Context, viewer *model.Identity, id string, in ArticleInput) (*model.Article, error) {
	return s.update(ctx, viewer, id, in.MetaInput, func(a *model.Article, errs *fieldErrors) {
		s.apply(a, in, false, errs)
	})
}

// Delete は記事を削除する。
func (s *ArticleService) Delete(ctx context.Context, viewer *model.Identity, id string) error {
	return s.delete(ctx, viewer, id)
}

// Facet はカテゴリーまたはタグの一覧を返す。
func (s *ArticleService) Facet(ctx context.Context, name string) ([]string, error) {
	return s.facet(ctx, name)
}

func (s *ArticleService) apply(a *model.Article, in ArticleInput, creating bool, errs *fieldErrors) {
	if v, ok := errs.text("excerpt", s.stripped(in.Excerpt), creating, true, 5, maxExcerptLength); ok {
		a.Excerpt = v
	}
	if v, ok := s.richText(errs, "content", in.Content, creating, true); ok {
		a.Content = v
	}
	if v, ok := s.assetURL(errs, "featuredImage", in.FeaturedImage, creating, false); ok {
		a.FeaturedImage = v
	}
	if v, ok := errs.text("featuredImageAlt", s.stripped(in.FeaturedImageAlt), creating, false, 0, maxTitleLength); ok {
		a.FeaturedImageAlt = v
	}
	if v, ok := list(in.Categories, creating); ok {
		a.Categories = v
	}
	if v, ok := list(in.Tags, creating); ok {
		a.Tags = v
	}
}
