package repository

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// nullString は空文字列をNULLに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime はnilをNULLに変換する。時刻はUTCで保存する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// timePtr はNULL許容時刻をポインタに変換する。
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// validID はIDがUUID形式かどうかを返す。
// PostgreSQLのuuid列に不正な文字列を渡すと型エラーになるため、事前に弾く。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func placeholders(d *Dialect, n int) string {
	phs := make([]string, n)
	for i := range phs {
		phs[i] = d.placeholder(i + 1)
	}
	return strings.Join(phs, ", ")
}
