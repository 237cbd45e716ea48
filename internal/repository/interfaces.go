// Package repository はデータ永続化のインターフェースと各バックエンドの実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/sitepress/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はErrNotFoundを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はErrNotFoundを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// List は全ユーザーを作成日時の昇順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrConflictを返す。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザー情報（パスワードハッシュを含む）を更新する。
	Update(ctx context.Context, user *model.User) error

	// UpdateLastLogin は最終ログイン日時を記録する。
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// Delete は指定IDのユーザーを削除する。
	// 作成したコンテンツのauthor_idはNULLになる。
	Delete(ctx context.Context, id string) error
}

// ContentFilter はコンテンツ一覧の絞り込み条件。
type ContentFilter struct {
	Status     string // 空文字列は全ステータス
	PublicOnly bool   // status=published かつ published_at IS NOT NULL に限定する
	Facet      string // 主ファセット（category、industry、topic）の値
	Tag        string
	Search     string // 大文字小文字を区別しない部分一致
	Limit      int
	Offset     int
}

// RelatedQuery は関連コンテンツ検索の条件。
// 公開済みで、主ファセットまたはタグを1つ以上共有するものを対象とする。
type RelatedQuery struct {
	ExcludeID string
	Facets    []string
	Tags      []string
	Limit     int
}

// ContentRepository は記事・導入事例・ホワイトペーパー共通の永続化インターフェース。
type ContentRepository[T any] interface {
	// List は条件に一致するレコードと総件数を返す。
	// 並び順は published_at の降順、次に created_at の降順。
	List(ctx context.Context, filter ContentFilter) ([]T, int, error)

	// FindByID は指定IDのレコードを取得する。見つからない場合はErrNotFoundを返す。
	FindByID(ctx context.Context, id string) (T, error)

	// FindBySlug はslugでレコードを取得する。見つからない場合はErrNotFoundを返す。
	FindBySlug(ctx context.Context, slug string) (T, error)

	// Create はレコードを作成する。slugが重複する場合はErrConflictを返す。
	Create(ctx context.Context, record T) error

	// Update はカウンタ以外の項目を更新する。
	Update(ctx context.Context, record T) error

	// Delete は指定IDのレコードを物理削除する。
	Delete(ctx context.Context, id string) error

	// IncrementViewCount は閲覧数をアトミックに1加算する。
	IncrementViewCount(ctx context.Context, id string) error

	// Related は関連コンテンツを返す。対応しないバックエンドはErrUnsupportedを返す。
	Related(ctx context.Context, q RelatedQuery) ([]T, error)

	// FacetValues は公開済みレコードのリスト列の値を重複なし・昇順で返す。
	FacetValues(ctx context.Context, column string) ([]string, error)
}

// ArticleRepository は記事の永続化インターフェース。
type ArticleRepository interface {
	ContentRepository[*model.Article]
}

// CaseStudyRepository は導入事例の永続化インターフェース。
type CaseStudyRepository interface {
	ContentRepository[*model.CaseStudy]
}

// WhitepaperRepository はホワイトペーパーの永続化インターフェース。
type WhitepaperRepository interface {
	ContentRepository[*model.Whitepaper]

	// IncrementDownloadCount はダウンロード数をアトミックに1加算する。
	IncrementDownloadCount(ctx context.Context, id string) error
}

// LeadRepository はリード情報の永続化インターフェース。
type LeadRepository interface {
	// Create はリードを保存する。
	Create(ctx context.Context, lead *model.Lead) error

	// DeleteOlderThan は指定日時より前に作成されたリードを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
