package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/sitepress/internal/model"
)

// SQLLeadRepo はSQLバックエンド共通のリードリポジトリ。
type SQLLeadRepo struct {
	db *sql.DB
	d  *Dialect
}

// NewSQLLeadRepo はSQLLeadRepoを生成する。
func NewSQLLeadRepo(db *sql.DB, d *Dialect) *SQLLeadRepo {
	return &SQLLeadRepo{db: db, d: d}
}

// Create はリードを保存する。
func (r *SQLLeadRepo) Create(ctx context.Context, l *model.Lead) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO leads (id, whitepaper_id, email, first_name, last_name, company, job_title, created_at)
		 VALUES (`+placeholders(r.d, 8)+`)`,
		l.ID, l.WhitepaperID, l.Email, l.FirstName, l.LastName, l.Company, l.JobTitle, l.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert lead: %w", err)
	}
	return nil
}

// DeleteOlderThan は指定日時より前に作成されたリードを削除し、削除件数を返す。
func (r *SQLLeadRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM leads WHERE created_at < "+r.d.placeholder(1),
		before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old leads: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ LeadRepository = (*SQLLeadRepo)(nil)
