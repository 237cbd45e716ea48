package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/sitepress/internal/fieldnorm"
	"github.com/hitoshi/sitepress/internal/model"
	"github.com/hitoshi/sitepress/internal/repository"
)

// FamilyCaseStudies は導入事例のファミリー名。
const FamilyCaseStudies = "case-studies"

// ResultInput は成果指標の入力。値は数値でも文字列でもよい。
type ResultInput struct {
	Metric      fieldnorm.Text `json:"metric"`
	Value       fieldnorm.Text `json:"value"`
	Unit        fieldnorm.Text `json:"unit"`
	Description fieldnorm.Text `json:"description"`
}

// CaseStudyInput は導入事例の作成・更新入力。
// resultsとtestimonialはJSON文字列としても受け付ける。
type CaseStudyInput struct {
	MetaInput
	ClientName    *string                                `json:"clientName"`
	ClientLogo    *string                                `json:"clientLogo"`
	Excerpt       *string                                `json:"excerpt"`
	Challenge     *string                                `json:"challenge"`
	Solution      *string                                `json:"solution"`
	Results       *fieldnorm.Lenient[[]ResultInput]      `json:"results"`
	Industries    *fieldnorm.StringList                  `json:"industries"`
	Tags          *fieldnorm.StringList                  `json:"tags"`
	Testimonial   *fieldnorm.Lenient[*model.Testimonial] `json:"testimonial"`
	FeaturedImage *string                                `json:"featuredImage"`
}

// CaseStudyDetail はslug指定で取得した導入事例と関連事例。
type CaseStudyDetail struct {
	*model.CaseStudy
	Author  *model.Author      `json:"author"`
	Related []*model.CaseStudy `json:"related"`
}

// CaseStudyService は導入事例の業務ロジックを提供する。
type CaseStudyService struct {
	*core[*model.CaseStudy]
}

// NewCaseStudyService はCaseStudyServiceを生成する。
func NewCaseStudyService(repo repository.CaseStudyRepository, opts Options) *CaseStudyService {
	facets := map[string]string{
		"industries": "industries",
		"tags":       "tags",
	}
	return &CaseStudyService{
		core: newCore[*model.CaseStudy](repo, opts, FamilyCaseStudies, "Case study", facets, func() *model.CaseStudy {
			return &model.CaseStudy{}
		}),
	}
}

// List は導入事例一覧を返す。
func (s *CaseStudyService) List(ctx context.Context, viewer *model.Identity, q ListQuery) (*Page[*model.CaseStudy], error) {
	return s.list(ctx, viewer, q)
}

// GetBySlug は導入事例を関連事例とともに返す。
func (s *CaseStudyService) GetBySlug(ctx context.Context, viewer *model.Identity, slug string) (*CaseStudyDetail, error) {
	cs, author, err := s.getBySlug(ctx, viewer, slug)
	if err != nil {
		return nil, err
	}

	return &CaseStudyDetail{
		CaseStudy: cs,
		Author:    author,
		Related:   s.related(ctx, cs.ID, cs.Industries, cs.Tags),
	}, nil
}

// GetByID は編集用に導入事例を返す。
func (s *CaseStudyService) GetByID(ctx context.Context, viewer *model.Identity, id string) (*model.CaseStudy, error) {
	return s.getByID(ctx, viewer, id)
}

// Create は導入事例を作成する。
func (s *CaseStudyService) Create(ctx context.Context, viewer *model.Identity, in CaseStudyInput) (*model.CaseStudy, error) {
	return s.create(ctx, viewer, in.MetaInput, func(cs *model.CaseStudy, errs *fieldErrors) {
		s.apply(cs, in, true, errs)
	})
}

// Update は導入事例を部分更新する。
func (s *CaseStudyService) Update(ctx context.Context, viewer *model.Identity, id string, in CaseStudyInput) (*model.CaseStudy, error) {
	return s.update(ctx, viewer, id, in.MetaInput, func(cs *model.CaseStudy, errs *fieldErrors) {
		s.apply(cs, in, false, errs)
	})
}

// Delete は導入事例を削除する。
func (s *CaseStudyService) Delete(ctx context.Context, viewer *model.Identity, id string) error {
	return s.delete(ctx, viewer, id)
}

// Facet は業種またはタグの一覧を返す。
func (s *CaseStudyService) Facet(ctx context.Context, name string) ([]string, error) {
	return s.facet(ctx, name)
}

func (s *CaseStudyService) apply(cs *model.CaseStudy, in CaseStudyInput, creating bool, errs *fieldErrors) {
	if v, ok := errs.text("clientName", s.stripped(in.ClientName), creating, true, 0, maxTitleLength); ok {
		cs.ClientName = v
	}
	if v, ok := s.assetURL(errs, "clientLogo", in.ClientLogo, creating, false); ok {
		cs.ClientLogo = v
	}
	if v, ok := errs.text("excerpt", s.stripped(in.Excerpt), creating, false, 0, maxExcerptLength); ok {
		cs.Excerpt = v
	}
	if v, ok := s.richText(errs, "challenge", in.Challenge, creating, true); ok {
		cs.Challenge = v
	}
	if v, ok := s.richText(errs, "solution", in.Solution, creating, true); ok {
		cs.Solution = v
	}
	if in.Results != nil {
		if results, ok := s.results(in.Results.V, errs); ok {
			cs.Results = results
		}
	} else if creating {
		cs.Results = []model.ResultMetric{}
	}
	if v, ok := list(in.Industries, creating); ok {
		cs.Industries = v
	}
	if v, ok := list(in.Tags, creating); ok {
		cs.Tags = v
	}
	if in.Testimonial != nil {
		if t, ok := s.testimonial(in.Testimonial.V, errs); ok {
			cs.Testimonial = t
		}
	}
	if v, ok := s.assetURL(errs, "featuredImage", in.FeaturedImage, creating, false); ok {
		cs.FeaturedImage = v
	}
}

func (s *CaseStudyService) results(in []ResultInput, errs *fieldErrors) ([]model.ResultMetric, bool) {
	out := make([]model.ResultMetric, 0, len(in))
	valid := true
	for i, r := range in {
		m := model.ResultMetric{
			Metric:      s.sanitizer.StripTags(string(r.Metric)),
			Value:       s.sanitizer.StripTags(string(r.Value)),
			Unit:        s.sanitizer.StripTags(string(r.Unit)),
			Description: s.sanitizer.StripTags(string(r.Description)),
		}
		if m.Metric == "" {
			errs.add(fmt.Sprintf("results[%d].metric", i), "is required")
			valid = false
		}
		if m.Value == "" {
			errs.add(fmt.Sprintf("results[%d].value", i), "is required")
			valid = false
		}
		out = append(out, m)
	}
	return out, valid
}

// testimonial はnullまたは空のオブジェクトを削除として扱う。
func (s *CaseStudyService) testimonial(in *model.Testimonial, errs *fieldErrors) (*model.Testimonial, bool) {
	if in == nil {
		return nil, true
	}
	t := &model.Testimonial{
		Quote:    s.sanitizer.StripTags(in.Quote),
		Author:   s.sanitizer.StripTags(in.Author),
		Position: s.sanitizer.StripTags(in.Position),
		Company:  s.sanitizer.StripTags(in.Company),
	}
	if strings.TrimSpace(t.Quote+t.Author+t.Position+t.Company) == "" {
		return nil, true
	}

	valid := true
	if t.Quote == "" {
		errs.add("testimonial.quote", "is required")
		valid = false
	}
	if t.Author == "" {
		errs.add("testimonial.author", "is required")
		valid = false
	}
	return t, valid
}
