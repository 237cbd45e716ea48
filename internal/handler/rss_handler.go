package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/feeds"

	"github.com/hitoshi/sitepress/internal/content"
	"github.com/hitoshi/sitepress/internal/model"
)

// rssItemLimit はRSSに含める記事数。
const rssItemLimit = 20

// ArticleLister は公開記事の一覧を取得する。
type ArticleLister interface {
	List(ctx context.Context, viewer *model.Identity, q content.ListQuery) (*content.Page[*model.Article], error)
}

// SiteInfo はRSSチャンネルに載せるサイト情報。
type SiteInfo struct {
	Name    string
	BaseURL string
}

// RSSHandler は最新の公開記事をRSS 2.0で配信する。
type RSSHandler struct {
	articles ArticleLister
	site     SiteInfo
}

// NewRSSHandler はRSSHandlerを生成する。
func NewRSSHandler(articles ArticleLister, site SiteInfo) *RSSHandler {
	site.BaseURL = strings.TrimRight(site.BaseURL, "/")
	return &RSSHandler{
		articles: articles,
		site:     site,
	}
}

// Feed はRSSを返す。
// GET /api/articles/rss
func (h *RSSHandler) Feed(w http.ResponseWriter, r *http.Request) {
	page, err := h.articles.List(r.Context(), nil, content.ListQuery{Page: 1, Limit: rssItemLimit})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	feed := &feeds.Feed{
		Title:       h.site.Name,
		Link:        &feeds.Link{Href: h.site.BaseURL},
		Description: "Latest articles from " + h.site.Name,
		Items:       make([]*feeds.Item, 0, len(page.Items)),
	}
	for i, a := range page.Items {
		link := h.site.BaseURL + "/blog/" + a.Slug
		item := &feeds.Item{
			Title:       a.Title,
			Link:        &feeds.Link{Href: link},
			Id:          link,
			Description: a.Excerpt,
		}
		if a.PublishedAt != nil {
			item.Created = a.PublishedAt.UTC()
			if i == 0 {
				feed.Updated = item.Created
			}
		}
		feed.Items = append(feed.Items, item)
	}

	// feeds.Itemはカテゴリーを持たないため、RSS表現に変換してから設定する
	rss := (&feeds.Rss{Feed: feed}).RssFeed()
	for i, a := range page.Items {
		if len(a.Categories) > 0 {
			rss.Items[i].Category = strings.Join(a.Categories, ", ")
		}
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := feeds.WriteXML(rss, w); err != nil {
		slog.Error("failed to encode rss", slog.String("error", err.Error()))
	}
}
