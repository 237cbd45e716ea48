package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hitoshi/sitepress/internal/fieldnorm"
)

// Dialect はSQLバックエンドごとの差異を吸収する。
// リスト列はPostgreSQLではtext[]、SQLiteではJSONテキストとして保存される。
type Dialect struct {
	Name string

	placeholder     func(n int) string
	list            func(items []string) any
	contains        func(column, ph string) string
	overlaps        func(column, ph string) string
	search          func(column, ph string) string
	uniqueViolation func(err error) bool
}

// Postgres はPostgreSQL（lib/pq）向けのDialect。
var Postgres = &Dialect{
	Name: "postgres",
	placeholder: func(n int) string {
		return fmt.Sprintf("$%d", n)
	},
	list: func(items []string) any {
		if items == nil {
			items = []string{}
		}
		return pq.Array(items)
	},
	contains: func(column, ph string) string {
		return fmt.Sprintf("%s = ANY(%s)", ph, column)
	},
	overlaps: func(column, ph string) string {
		return fmt.Sprintf("%s && %s::text[]", column, ph)
	},
	search: func(column, ph string) string {
		return fmt.Sprintf("%s ILIKE %s", column, ph)
	},
	uniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		// 23505: unique_violation
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
}

// SQLite は組み込みSQLite（modernc.org/sqlite）向けのDialect。
var SQLite = &Dialect{
	Name: "sqlite",
	placeholder: func(int) string {
		return "?"
	},
	list: func(items []string) any {
		return fieldnorm.JSONText(items)
	},
	contains: func(column, ph string) string {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) AS j WHERE j.value = %s)", column, ph)
	},
	overlaps: func(column, ph string) string {
		return fmt.Sprintf(
			"EXISTS (SELECT 1 FROM json_each(%s) AS a WHERE a.value IN (SELECT b.value FROM json_each(%s) AS b))",
			column, ph)
	},
	search: func(column, ph string) string {
		return fmt.Sprintf(`LOWER(%s) LIKE LOWER(%s) ESCAPE '\'`, column, ph)
	},
	uniqueViolation: func(err error) bool {
		var sqliteErr *sqlite.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	},
}

// likePattern は部分一致検索用のLIKEパターンを組み立てる。
// %と_はエスケープする。
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// queryBuilder はWHERE句と引数を組み立てる。
// プレースホルダは引数の追加順に採番される。
type queryBuilder struct {
	d     *Dialect
	conds []string
	args  []any
}

func newQueryBuilder(d *Dialect) *queryBuilder {
	return &queryBuilder{d: d}
}

// arg は引数を追加し、対応するプレースホルダを返す。
func (q *queryBuilder) arg(v any) string {
	q.args = append(q.args, v)
	return q.d.placeholder(len(q.args))
}

func (q *queryBuilder) where(cond string) {
	q.conds = append(q.conds, cond)
}

func (q *queryBuilder) whereSQL() string {
	if len(q.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conds, " AND ")
}
