package content

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/hitoshi/sitepress/internal/fieldnorm"
	"github.com/hitoshi/sitepress/internal/model"
	"github.com/hitoshi/sitepress/internal/repository"
)

// FamilyWhitepapers はホワイトペーパーのファミリー名。
const FamilyWhitepapers = "whitepapers"

const (
	minAbstractLength = 100
	maxAbstractLength = 1000
	maxLeadField      = 200
)

// Prober は外部PDFのファイルサイズを取得する。
type Prober interface {
	Probe(ctx context.Context, rawURL string) (int64, error)
}

// WhitepaperInput はホワイトペーパーの作成・更新入力。
type WhitepaperInput struct {
	MetaInput
	Abstract     *string               `json:"abstract"`
	KeyTakeaways *fieldnorm.StringList `json:"keyTakeaways"`
	Topics       *fieldnorm.StringList `json:"topics"`
	Tags         *fieldnorm.StringList `json:"tags"`
	PDFURL       *string               `json:"pdfUrl"`
	CoverImage   *string               `json:"coverImage"`
	IsGated      *bool                 `json:"isGated"`
	FileSize     *int64                `json:"fileSize"`
	PageCount    *int                  `json:"pageCount"`
}

// WhitepaperDetail はslug指定で取得したホワイトペーパーと表示用のファイルサイズ。
type WhitepaperDetail struct {
	*model.Whitepaper
	Author            *model.Author `json:"author"`
	FileSizeFormatted string        `json:"fileSizeFormatted"`
}

// LeadInput はゲート付きダウンロードで送信される見込み顧客情報。
type LeadInput struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Company   string `json:"company"`
	JobTitle  string `json:"jobTitle"`
}

// DownloadResult はダウンロード要求の結果。
type DownloadResult struct {
	PDFURL string `json:"pdfUrl"`
}

// WhitepaperService はホワイトペーパーの業務ロジックを提供する。
type WhitepaperService struct {
	*core[*model.Whitepaper]
	papers repository.WhitepaperRepository
	leads  repository.LeadRepository
	prober Prober
}

// NewWhitepaperService はWhitepaperServiceを生成する。proberがnilの場合はサイズを取得しない。
func NewWhitepaperService(repo repository.WhitepaperRepository, leads repository.LeadRepository, prober Prober, opts Options) *WhitepaperService {
	facets := map[string]string{
		"topics": "topics",
		"tags":   "tags",
	}
	s := &WhitepaperService{
		core: newCore[*model.Whitepaper](repo, opts, FamilyWhitepapers, "Whitepaper", facets, func() *model.Whitepaper {
			return &model.Whitepaper{}
		}),
		papers: repo,
		leads:  leads,
		prober: prober,
	}
	s.beforeSave = s.probeFileSize
	return s
}

// List はホワイトペーパー一覧を返す。
// ゲート付きのものは管理者・編集者以外にはPDFのURLを返さない。
func (s *WhitepaperService) List(ctx context.Context, viewer *model.Identity, q ListQuery) (*Page[*model.Whitepaper], error) {
	page, err := s.list(ctx, viewer, q)
	if err != nil {
		return nil, err
	}
	for _, wp := range page.Items {
		redactGated(viewer, wp)
	}
	return page, nil
}

// GetBySlug はホワイトペーパーを表示用のファイルサイズとともに返す。
func (s *WhitepaperService) GetBySlug(ctx context.Context, viewer *model.Identity, slug string) (*WhitepaperDetail, error) {
	wp, author, err := s.getBySlug(ctx, viewer, slug)
	if err != nil {
		return nil, err
	}
	redactGated(viewer, wp)

	detail := &WhitepaperDetail{
		Whitepaper: wp,
		Author:     author,
	}
	if wp.FileSize > 0 {
		detail.FileSizeFormatted = FormatFileSize(wp.FileSize)
	}
	return detail, nil
}

// GetByID は編集用にホワイトペーパーを返す。
func (s *WhitepaperService) GetByID(ctx context.Context, viewer *model.Identity, id string) (*model.Whitepaper, error) {
	return s.getByID(ctx, viewer, id)
}

// Create はホワイトペーパーを作成する。
func (s *WhitepaperService) Create(ctx context.Context, viewer *model.Identity, in WhitepaperInput) (*model.Whitepaper, error) {
	return s.create(ctx, viewer, in.MetaInput, func(wp *model.Whitepaper, errs *fieldErrors) {
		s.apply(wp, in, true, errs)
	})
}

// Update はホワイトペーパーを部分更新する。
func (s *WhitepaperService) Update(ctx context.Context, viewer *model.Identity, id string, in WhitepaperInput) (*model.Whitepaper, error) {
	return s.update(ctx, viewer, id, in.MetaInput, func(wp *model.Whitepaper, errs *fieldErrors) {
		s.apply(wp, in, false, errs)
	})
}

// Delete はホワイトペーパーを削除する。
func (s *WhitepaperService) Delete(ctx context.Context, viewer *model.Identity, id string) error {
	return s.delete(ctx, viewer, id)
}

// Facet はトピックまたはタグの一覧を返す。
func (s *WhitepaperService) Facet(ctx context.Context, name string) ([]string, error) {
	return s.facet(ctx, name)
}

// Download は公開済みホワイトペーパーのPDFのURLを返し、ダウンロード数を1加算する。
// ゲート付きの場合は有効なメールアドレスが必須で、リード情報を保存する。
func (s *WhitepaperService) Download(ctx context.Context, slug string, in LeadInput) (*DownloadResult, error) {
	wp, err := s.papers.FindBySlug(ctx, slug)
	if err != nil {
		return nil, s.notFoundOr(err, "find")
	}
	if !wp.IsPublic() {
		return nil, model.NewNotFoundError(s.resource)
	}

	if wp.IsGated {
		lead, err := s.newLead(wp.ID, in)
		if err != nil {
			return nil, err
		}
		if err := s.leads.Create(ctx, lead); err != nil {
			return nil, fmt.Errorf("failed to save lead: %w", err)
		}
		s.rec.RecordLead()
		slog.Info("lead captured",
			slog.String("whitepaper_id", wp.ID),
			slog.String("lead_id", lead.ID),
		)
	}

	if err := s.papers.IncrementDownloadCount(ctx, wp.ID); err != nil {
		return nil, s.notFoundOr(err, "count download of")
	}
	s.rec.RecordDownload()

	return &DownloadResult{PDFURL: wp.PDFURL}, nil
}

func (s *WhitepaperService) newLead(whitepaperID string, in LeadInput) (*model.Lead, error) {
	var errs fieldErrors

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		errs.add("email", "is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs.add("email", "must be a valid email address")
	}

	lead := &model.Lead{
		ID:           uuid.NewString(),
		WhitepaperID: whitepaperID,
		Email:        email,
		CreatedAt:    s.now().UTC(),
	}
	fields := []struct {
		name string
		src  string
		dst  *string
	}{
		{"firstName", in.FirstName, &lead.FirstName},
		{"lastName", in.LastName, &lead.LastName},
		{"company", in.Company, &lead.Company},
		{"jobTitle", in.JobTitle, &lead.JobTitle},
	}
	for _, f := range fields {
		raw := s.sanitizer.StripTags(f.src)
		if v, ok := errs.text(f.name, &raw, false, false, 0, maxLeadField); ok {
			*f.dst = v
		}
	}

	if err := errs.err(); err != nil {
		return nil, err
	}
	return lead, nil
}

func (s *WhitepaperService) apply(wp *model.Whitepaper, in WhitepaperInput, creating bool, errs *fieldErrors) {
	if v, ok := errs.text("abstract", s.stripped(in.Abstract), creating, true, minAbstractLength, maxAbstractLength); ok {
		wp.Abstract = v
	}
	if v, ok := list(in.KeyTakeaways, creating); ok {
		wp.KeyTakeaways = v
	}
	if v, ok := list(in.Topics, creating); ok {
		wp.Topics = v
	}
	if v, ok := list(in.Tags, creating); ok {
		wp.Tags = v
	}
	if v, ok := s.assetURL(errs, "pdfUrl", in.PDFURL, creating, true); ok {
		if v != wp.PDFURL && in.FileSize == nil {
			wp.FileSize = 0
		}
		wp.PDFURL = v
	}
	if v, ok := s.assetURL(errs, "coverImage", in.CoverImage, creating, false); ok {
		wp.CoverImage = v
	}
	if in.IsGated != nil {
		wp.IsGated = *in.IsGated
	}
	if in.FileSize != nil {
		if *in.FileSize < 0 {
			errs.add("fileSize", "must be zero or greater")
		} else {
			wp.FileSize = *in.FileSize
		}
	}
	if in.PageCount != nil {
		if *in.PageCount < 0 {
			errs.add("pageCount", "must be zero or greater")
		} else {
			wp.PageCount = *in.PageCount
		}
	}
}

// probeFileSize は外部PDFのサイズが未設定の場合に取得する。失敗してもサイズは0のまま保存する。
func (s *WhitepaperService) probeFileSize(ctx context.Context, wp *model.Whitepaper) {
	if s.prober == nil || wp.FileSize != 0 || !absoluteHTTPURL(wp.PDFURL) {
		return
	}

	size, err := s.prober.Probe(ctx, wp.PDFURL)
	if err != nil {
		slog.Warn("failed to probe pdf size",
			slog.String("url", wp.PDFURL),
			slog.String("error", err.Error()),
		)
		return
	}
	wp.FileSize = size
}

func redactGated(viewer *model.Identity, wp *model.Whitepaper) {
	if wp.IsGated && !viewer.IsStaff() {
		wp.PDFURL = ""
	}
}
