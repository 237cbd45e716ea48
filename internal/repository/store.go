package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/hitoshi/sitepress/internal/config"
	"github.com/hitoshi/sitepress/internal/database"
	"github.com/hitoshi/sitepress/internal/model"
)

// Options はストレージバックエンドの選択と接続先を指定する。
type Options struct {
	Backend     string
	DatabaseURL string
	SQLitePath  string
	FileDir     string
}

// Store はバックエンドごとのリポジトリ一式をまとめる。
type Store struct {
	Backend     string
	Users       UserRepository
	Articles    ArticleRepository
	CaseStudies CaseStudyRepository
	Whitepapers WhitepaperRepository
	Leads       LeadRepository

	ping  func(ctx context.Context) error
	close func() error
}

// Ping はバックエンドへの到達性を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close はバックエンドの接続を閉じる。
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open はOptions.Backendに応じたStoreを生成する。
// sqliteはスキーマを起動時に適用する。postgresのスキーマはmigrateサブコマンドで適用する。
func Open(ctx context.Context, opts Options) (*Store, error) {
	switch opts.Backend {
	case config.BackendSQLite:
		db, err := database.OpenSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := database.RunSQLiteMigrations(opts.SQLitePath); err != nil {
			db.Close()
			return nil, err
		}
		return NewSQLStore(db, SQLite), nil

	case config.BackendPostgres:
		db, err := database.Open(opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return NewSQLStore(db, Postgres), nil

	case config.BackendFile:
		return NewFileStore(opts.FileDir)

	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", opts.Backend)
	}
}

// NewSQLStore はSQLバックエンドのStoreを生成する。
func NewSQLStore(db *sql.DB, d *Dialect) *Store {
	return &Store{
		Backend:     d.Name,
		Users:       NewSQLUserRepo(db, d),
		Articles:    NewSQLArticleRepo(db, d),
		CaseStudies: NewSQLCaseStudyRepo(db, d),
		Whitepapers: NewSQLWhitepaperRepo(db, d),
		Leads:       NewSQLLeadRepo(db, d),
		ping:        db.PingContext,
		close:       db.Close,
	}
}

// NewFileStore はディレクトリ内のJSONドキュメントを使うStoreを生成する。
// ディレクトリが存在しない場合は作成する。
func NewFileStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create file store directory: %w", err)
	}

	users, err := openCollection[*model.User](dir, "users")
	if err != nil {
		return nil, err
	}
	articles, err := openCollection[*model.Article](dir, "articles")
	if err != nil {
		return nil, err
	}
	caseStudies, err := openCollection[*model.CaseStudy](dir, "case_studies")
	if err != nil {
		return nil, err
	}
	whitepapers, err := openCollection[*model.Whitepaper](dir, "whitepapers")
	if err != nil {
		return nil, err
	}
	leads, err := openCollection[*model.Lead](dir, "leads")
	if err != nil {
		return nil, err
	}

	return &Store{
		Backend:     config.BackendFile,
		Users:       &FileUserRepo{c: users},
		Articles:    &FileContentRepo[*model.Article]{c: articles, f: articleFamily},
		CaseStudies: &FileContentRepo[*model.CaseStudy]{c: caseStudies, f: caseStudyFamily},
		Whitepapers: &FileWhitepaperRepo{&FileContentRepo[*model.Whitepaper]{c: whitepapers, f: whitepaperFamily}},
		Leads:       &FileLeadRepo{c: leads},
		ping: func(context.Context) error {
			_, err := os.Stat(dir)
			return err
		},
	}, nil
}
