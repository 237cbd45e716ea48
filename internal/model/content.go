package model

import "time"

// 公開ステータス。
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// ValidStatus はステータス文字列が既知の値かどうかを返す。
func ValidStatus(status string) bool {
	switch status {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// SEO は検索エンジン向けのメタ情報。
type SEO struct {
	MetaTitle       string `json:"metaTitle"`
	MetaDescription string `json:"metaDescription"`
	CanonicalURL    string `json:"canonicalUrl"`
}

// ContentMeta は記事・事例・ホワイトペーパーに共通する項目。
type ContentMeta struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	AuthorID    string     `json:"authorId"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	SEO         SEO        `json:"seo"`
	ViewCount   int64      `json:"viewCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Meta は共通項目へのポインタを返す。
func (m *ContentMeta) Meta() *ContentMeta {
	return m
}

// IsPublic は公開済みかつ公開日時が設定されているかどうかを返す。
func (m *ContentMeta) IsPublic() bool {
	return m.Status == StatusPublished && m.PublishedAt != nil
}

// Article はブログ記事を表す。
type Article struct {
	ContentMeta
	Excerpt          string   `json:"excerpt"`
	Content          string   `json:"content"`
	FeaturedImage    string   `json:"featuredImage"`
	FeaturedImageAlt string   `json:"featuredImageAlt"`
	Categories       []string `json:"categories"`
	Tags             []string `json:"tags"`
}

// ResultMetric は導入事例の成果指標。
type ResultMetric struct {
	Metric      string `json:"metric"`
	Value       string `json:"value"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
}

// Testimonial は顧客の推薦コメント。
type Testimonial struct {
	Quote    string `json:"quote"`
	Author   string `json:"author"`
	Position string `json:"position,omitempty"`
	Company  string `json:"company,omitempty"`
}

// CaseStudy は導入事例を表す。
type CaseStudy struct {
	ContentMeta
	ClientName    string         `json:"clientName"`
	ClientLogo    string         `json:"clientLogo"`
	Excerpt       string         `json:"excerpt"`
	Challenge     string         `json:"challenge"`
	Solution      string         `json:"solution"`
	Results       []ResultMetric `json:"results"`
	Industries    []string       `json:"industries"`
	Tags          []string       `json:"tags"`
	Testimonial   *Testimonial   `json:"testimonial,omitempty"`
	FeaturedImage string         `json:"featuredImage"`
}

// Whitepaper はダウンロード資料を表す。
type Whitepaper struct {
	ContentMeta
	Abstract      string   `json:"abstract"`
	KeyTakeaways  []string `json:"keyTakeaways"`
	Topics        []string `json:"topics"`
	Tags          []string `json:"tags"`
	PDFURL        string   `json:"pdfUrl"`
	CoverImage    string   `json:"coverImage"`
	IsGated       bool     `json:"isGated"`
	DownloadCount int64    `json:"downloadCount"`
	FileSize      int64    `json:"fileSize"`
	PageCount     int      `json:"pageCount"`
}

// Lead はゲート付きホワイトペーパーのダウンロード時に取得する見込み顧客情報。
type Lead struct {
	ID           string    `json:"id"`
	WhitepaperID string    `json:"whitepaperId"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Company      string    `json:"company"`
	JobTitle     string    `json:"jobTitle"`
	CreatedAt    time.Time `json:"createdAt"`
}
