package repository

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sitepress/internal/model"
)

// storeCapabilities はバックエンドごとに異なる機能の有無。
type storeCapabilities struct {
	search  bool
	related bool
}

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func at(hours int) *time.Time {
	t := baseTime.Add(time.Duration(hours) * time.Hour)
	return &t
}

func createUser(t *testing.T, s *Store, email, role string) *model.User {
	t.Helper()
	u := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "$2a$04$hash",
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		IsActive:     true,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
	if err := s.Users.Create(context.Background(), u); err != nil {
		t.Fatalf("Users.Create(%s) failed: %v", email, err)
	}
	return u
}

func newArticle(authorID, slug, status string, publishedAt *time.Time, categories, tags []string) *model.Article {
	return &model.Article{
		ContentMeta: model.ContentMeta{
			ID:          uuid.NewString(),
			Title:       "Article " + slug,
			Slug:        slug,
			AuthorID:    authorID,
			Status:      status,
			PublishedAt: publishedAt,
			SEO:         model.SEO{MetaTitle: "meta " + slug},
			CreatedAt:   baseTime,
			UpdatedAt:   baseTime,
		},
		Excerpt:    "An excerpt for " + slug,
		Content:    "<p>Body of " + slug + "</p>",
		Categories: categories,
		Tags:       tags,
	}
}

func slugsOf(items []*model.Article) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.Slug)
	}
	return out
}

// runStoreSuite は全バックエンド共通の振る舞いを検証する。
func runStoreSuite(t *testing.T, s *Store, caps storeCapabilities) {
	t.Run("Users", func(t *testing.T) { testUsers(t, s) })
	t.Run("Articles", func(t *testing.T) { testArticles(t, s, caps) })
	t.Run("CaseStudies", func(t *testing.T) { testCaseStudies(t, s) })
	t.Run("Whitepapers", func(t *testing.T) { testWhitepapersAndLeads(t, s) })
}

func testUsers(t *testing.T, s *Store) {
	ctx := context.Background()
	u := createUser(t, s, "user@example.com", model.RoleEditor)

	got, err := s.Users.FindByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if got.ID != u.ID || got.Role != model.RoleEditor || !got.IsActive {
		t.Errorf("FindByEmail = %+v, want id %s editor active", got, u.ID)
	}

	dup := *u
	dup.ID = uuid.NewString()
	if err := s.Users.Create(ctx, &dup); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate email Create error = %v, want ErrConflict", err)
	}

	got.FirstName = "Renamed"
	got.Role = model.RoleAdmin
	got.UpdatedAt = baseTime.Add(time.Hour)
	if err := s.Users.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	loginAt := baseTime.Add(2 * time.Hour)
	if err := s.Users.UpdateLastLogin(ctx, u.ID, loginAt); err != nil {
		t.Fatalf("UpdateLastLogin failed: %v", err)
	}

	reloaded, err := s.Users.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if reloaded.FirstName != "Renamed" || reloaded.Role != model.RoleAdmin {
		t.Errorf("after Update = %+v", reloaded)
	}
	if reloaded.LastLoginAt == nil || !reloaded.LastLoginAt.Equal(loginAt) {
		t.Errorf("LastLoginAt = %v, want %v", reloaded.LastLoginAt, loginAt)
	}

	users, err := s.Users.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("len(List) = %d, want 1", len(users))
	}

	if _, err := s.Users.FindByID(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID(invalid) error = %v, want ErrNotFound", err)
	}

	if err := s.Users.Delete(ctx, u.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Users.FindByID(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID after Delete error = %v, want ErrNotFound", err)
	}
	if err := s.Users.Delete(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func testArticles(t *testing.T, s *Store, caps storeCapabilities) {
	ctx := context.Background()
	author := createUser(t, s, "author@example.com", model.RoleEditor)

	a1 := newArticle(author.ID, "go-basics", model.StatusPublished, at(10), []string{"go"}, []string{"web"})
	a2 := newArticle(author.ID, "design-systems", model.StatusPublished, at(12), []string{"design"}, []string{"web", "ux"})
	a3 := newArticle(author.ID, "draft-notes", model.StatusDraft, nil, []string{"go"}, []string{})
	a4 := newArticle(author.ID, "concurrency", model.StatusPublished, at(11), []string{"go"}, []string{"cli"})
	a4.Title = "Concurrency Patterns"

	for _, a := range []*model.Article{a1, a2, a3, a4} {
		if err := s.Articles.Create(ctx, a); err != nil {
			t.Fatalf("Create(%s) failed: %v", a.Slug, err)
		}
	}

	dup := newArticle(author.ID, "go-basics", model.StatusDraft, nil, nil, nil)
	if err := s.Articles.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate slug Create error = %v, want ErrConflict", err)
	}

	listTests := []struct {
		name      string
		filter    ContentFilter
		wantSlugs []string
		wantTotal int
	}{
		{"public", ContentFilter{PublicOnly: true, Limit: 10}, []string{"design-systems", "concurrency", "go-basics"}, 3},
		{"category", ContentFilter{PublicOnly: true, Facet: "go", Limit: 10}, []string{"concurrency", "go-basics"}, 2},
		{"tag", ContentFilter{PublicOnly: true, Tag: "web", Limit: 10}, []string{"design-systems", "go-basics"}, 2},
		{"draft", ContentFilter{Status: model.StatusDraft, Limit: 10}, []string{"draft-notes"}, 1},
		{"page two", ContentFilter{PublicOnly: true, Limit: 2, Offset: 2}, []string{"go-basics"}, 3},
	}
	for _, tt := range listTests {
		t.Run("List_"+tt.name, func(t *testing.T) {
			items, total, err := s.Articles.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			if got := slugsOf(items); !reflect.DeepEqual(got, tt.wantSlugs) {
				t.Errorf("slugs = %v, want %v", got, tt.wantSlugs)
			}
		})
	}

	all, total, err := s.Articles.List(ctx, ContentFilter{Limit: 10})
	if err != nil {
		t.Fatalf("List(all) failed: %v", err)
	}
	if total != 4 || len(all) != 4 {
		t.Errorf("List(all) total = %d len = %d, want 4", total, len(all))
	}
	if all[len(all)-1].Slug != "draft-notes" {
		t.Errorf("unpublished article should sort last, got %v", slugsOf(all))
	}

	searched, _, err := s.Articles.List(ctx, ContentFilter{PublicOnly: true, Search: "CONCURRENCY", Limit: 10})
	if caps.search {
		if err != nil {
			t.Fatalf("List(search) failed: %v", err)
		}
		if got := slugsOf(searched); !reflect.DeepEqual(got, []string{"concurrency"}) {
			t.Errorf("search slugs = %v, want [concurrency]", got)
		}
	} else if !errors.Is(err, ErrUnsupported) {
		t.Errorf("List(search) error = %v, want ErrUnsupported", err)
	}

	got, err := s.Articles.FindBySlug(ctx, "design-systems")
	if err != nil {
		t.Fatalf("FindBySlug failed: %v", err)
	}
	if !reflect.DeepEqual(got.Tags, []string{"web", "ux"}) || !reflect.DeepEqual(got.Categories, []string{"design"}) {
		t.Errorf("lists = %v / %v", got.Categories, got.Tags)
	}
	if got.AuthorID != author.ID || got.SEO.MetaTitle != "meta design-systems" {
		t.Errorf("FindBySlug = %+v", got.ContentMeta)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(*at(12)) {
		t.Errorf("PublishedAt = %v, want %v", got.PublishedAt, at(12))
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Articles.IncrementViewCount(ctx, got.ID); err != nil {
				t.Errorf("IncrementViewCount failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// 更新前に読み込んだレコードで上書きしてもカウンタは保持される
	got.Title = "Design Systems at Scale"
	got.Status = model.StatusArchived
	if err := s.Articles.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	reloaded, err := s.Articles.FindByID(ctx, got.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if reloaded.ViewCount != 10 {
		t.Errorf("ViewCount = %d, want 10", reloaded.ViewCount)
	}
	if reloaded.Title != "Design Systems at Scale" || reloaded.Status != model.StatusArchived {
		t.Errorf("after Update = %q / %q", reloaded.Title, reloaded.Status)
	}

	a4.Slug = "go-basics"
	if err := s.Articles.Update(ctx, a4); !errors.Is(err, ErrConflict) {
		t.Errorf("Update to taken slug error = %v, want ErrConflict", err)
	}

	related, err := s.Articles.Related(ctx, RelatedQuery{ExcludeID: a1.ID, Facets: []string{"go"}, Tags: []string{"web"}, Limit: 3})
	if caps.related {
		if err != nil {
			t.Fatalf("Related failed: %v", err)
		}
		if got := slugsOf(related); !reflect.DeepEqual(got, []string{"concurrency"}) {
			t.Errorf("related slugs = %v, want [concurrency]", got)
		}
	} else if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Related error = %v, want ErrUnsupported", err)
	}

	categories, err := s.Articles.FacetValues(ctx, "categories")
	if err != nil {
		t.Fatalf("FacetValues failed: %v", err)
	}
	if !reflect.DeepEqual(categories, []string{"go"}) {
		t.Errorf("categories = %v, want [go]", categories)
	}
	tags, err := s.Articles.FacetValues(ctx, "tags")
	if err != nil {
		t.Fatalf("FacetValues failed: %v", err)
	}
	if !reflect.DeepEqual(tags, []string{"cli", "web"}) {
		t.Errorf("tags = %v, want [cli web]", tags)
	}
	if _, err := s.Articles.FacetValues(ctx, "title; DROP TABLE articles"); err == nil {
		t.Error("FacetValues with unknown column should fail")
	}

	if err := s.Articles.Delete(ctx, a3.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Articles.FindByID(ctx, a3.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID after Delete error = %v, want ErrNotFound", err)
	}
	if err := s.Articles.IncrementViewCount(ctx, a3.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("IncrementViewCount on deleted error = %v, want ErrNotFound", err)
	}
}

func testCaseStudies(t *testing.T, s *Store) {
	ctx := context.Background()

	cs := &model.CaseStudy{
		ContentMeta: model.ContentMeta{
			ID:          uuid.NewString(),
			Title:       "Acme migrates",
			Slug:        "acme-migrates",
			Status:      model.StatusPublished,
			PublishedAt: at(1),
			CreatedAt:   baseTime,
			UpdatedAt:   baseTime,
		},
		ClientName: "Acme",
		Challenge:  "<p>Legacy</p>",
		Solution:   "<p>Cloud</p>",
		Results: []model.ResultMetric{
			{Metric: "Cost", Value: "40", Unit: "%", Description: "lower hosting cost"},
		},
		Industries:  []string{"retail", "logistics"},
		Tags:        []string{"cloud"},
		Testimonial: &model.Testimonial{Quote: "Great", Author: "Jane", Company: "Acme"},
	}
	if err := s.CaseStudies.Create(ctx, cs); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	plain := &model.CaseStudy{
		ContentMeta: model.ContentMeta{
			ID:        uuid.NewString(),
			Title:     "Draft study",
			Slug:      "draft-study",
			Status:    model.StatusDraft,
			CreatedAt: baseTime,
			UpdatedAt: baseTime,
		},
		ClientName: "Globex",
		Challenge:  "c",
		Solution:   "s",
		Industries: []string{"finance"},
	}
	if err := s.CaseStudies.Create(ctx, plain); err != nil {
		t.Fatalf("Create(plain) failed: %v", err)
	}

	got, err := s.CaseStudies.FindBySlug(ctx, "acme-migrates")
	if err != nil {
		t.Fatalf("FindBySlug failed: %v", err)
	}
	if !reflect.DeepEqual(got.Results, cs.Results) {
		t.Errorf("Results = %+v, want %+v", got.Results, cs.Results)
	}
	if got.Testimonial == nil || *got.Testimonial != *cs.Testimonial {
		t.Errorf("Testimonial = %+v, want %+v", got.Testimonial, cs.Testimonial)
	}

	gotPlain, err := s.CaseStudies.FindByID(ctx, plain.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if gotPlain.Testimonial != nil {
		t.Errorf("Testimonial = %+v, want nil", gotPlain.Testimonial)
	}
	if len(gotPlain.Results) != 0 || gotPlain.PublishedAt != nil {
		t.Errorf("plain case study = %+v", gotPlain)
	}

	industries, err := s.CaseStudies.FacetValues(ctx, "industries")
	if err != nil {
		t.Fatalf("FacetValues failed: %v", err)
	}
	if !reflect.DeepEqual(industries, []string{"logistics", "retail"}) {
		t.Errorf("industries = %v, want [logistics retail]", industries)
	}

	items, total, err := s.CaseStudies.List(ctx, ContentFilter{PublicOnly: true, Facet: "retail", Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != cs.ID {
		t.Errorf("List(industry) = %d items, total %d", len(items), total)
	}
}

func testWhitepapersAndLeads(t *testing.T, s *Store) {
	ctx := context.Background()

	wp := &model.Whitepaper{
		ContentMeta: model.ContentMeta{
			ID:          uuid.NewString(),
			Title:       "State of APIs",
			Slug:        "state-of-apis",
			Status:      model.StatusPublished,
			PublishedAt: at(2),
			CreatedAt:   baseTime,
			UpdatedAt:   baseTime,
		},
		Abstract:     "An abstract",
		KeyTakeaways: []string{"one", "two"},
		Topics:       []string{"api"},
		Tags:         []string{"report"},
		PDFURL:       "/uploads/2025/03/report.pdf",
		IsGated:      true,
		FileSize:     2_400_000,
		PageCount:    24,
	}
	if err := s.Whitepapers.Create(ctx, wp); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Whitepapers.IncrementDownloadCount(ctx, wp.ID); err != nil {
			t.Fatalf("IncrementDownloadCount failed: %v", err)
		}
	}

	wp.PageCount = 30
	if err := s.Whitepapers.Update(ctx, wp); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := s.Whitepapers.FindBySlug(ctx, "state-of-apis")
	if err != nil {
		t.Fatalf("FindBySlug failed: %v", err)
	}
	if got.DownloadCount != 3 {
		t.Errorf("DownloadCount = %d, want 3", got.DownloadCount)
	}
	if !got.IsGated || got.FileSize != 2_400_000 || got.PageCount != 30 {
		t.Errorf("whitepaper = %+v", got)
	}
	if !reflect.DeepEqual(got.KeyTakeaways, []string{"one", "two"}) {
		t.Errorf("KeyTakeaways = %v", got.KeyTakeaways)
	}

	now := time.Now().UTC()
	old := &model.Lead{ID: uuid.NewString(), WhitepaperID: wp.ID, Email: "old@example.com", CreatedAt: now.AddDate(0, 0, -400)}
	recent := &model.Lead{ID: uuid.NewString(), WhitepaperID: wp.ID, Email: "new@example.com", Company: "Initech", CreatedAt: now}
	for _, l := range []*model.Lead{old, recent} {
		if err := s.Leads.Create(ctx, l); err != nil {
			t.Fatalf("Leads.Create failed: %v", err)
		}
	}

	deleted, err := s.Leads.DeleteOlderThan(ctx, now.AddDate(0, 0, -365))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}
