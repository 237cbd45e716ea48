// Package fieldnorm はリクエストと永続化層の間で揺れる値表現を正規化する。
//
// リスト項目はJSON配列、JSON文字列、カンマ区切り文字列、PostgreSQLのtext[]リテラルの
// いずれでも受け付け、常に[]stringとして扱う。
package fieldnorm

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lib/pq"
)

// Strings は任意の表現のリスト値を、前後空白を除去し空要素と重複を取り除いた[]stringに変換する。
// 解釈できない値は空リストとして扱う。
func Strings(v any) []string {
	switch val := v.(type) {
	case nil:
		return []string{}
	case []string:
		return clean(val)
	case StringList:
		return clean(val)
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			if e == nil {
				continue
			}
			out = append(out, fmt.Sprint(e))
		}
		return clean(out)
	case string:
		return parseText(val)
	case []byte:
		return parseText(string(val))
	default:
		return []string{}
	}
}

func parseText(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}

	switch {
	case strings.HasPrefix(s, "["):
		var items []any
		if err := json.Unmarshal([]byte(s), &items); err == nil {
			return Strings(items)
		}
	case strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}"):
		var arr pq.StringArray
		if err := arr.Scan([]byte(s)); err == nil {
			return clean(arr)
		}
	case strings.HasPrefix(s, `"`):
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return parseText(inner)
		}
	}

	return clean(strings.Split(s, ","))
}

// clean は各要素の前後の空白を除き、空要素を捨てる。順序と重複はそのまま保つ。
func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// StringList はJSONデコードとSQLスキャンの両方で表現揺れを吸収するリスト型。
type StringList []string

// UnmarshalJSON はJSON配列、JSON文字列、nullのいずれも受け付ける。
func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = StringList{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Strings(s)
		return nil
	}
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("list field must be an array or a string: %w", err)
	}
	*l = Strings(items)
	return nil
}

// Scan はsql.Scannerを実装する。
// SQLiteのJSONテキストとPostgreSQLのtext[]リテラルの両方を読み込める。
func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = StringList{}
	case string:
		*l = parseText(v)
	case []byte:
		*l = parseText(string(v))
	default:
		return fmt.Errorf("unsupported list column type %T", src)
	}
	return nil
}

// JSONText はリストをJSON配列文字列に変換する。nilは"[]"になる。
func JSONText(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

// JSONValue は構造化値をJSONテキストとして書き込むためのdriver.Valuer。
type JSONValue struct {
	V any
}

// Value はdriver.Valuerを実装する。
func (j JSONValue) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONScanner は構造化値をJSONテキストから読み込むためのsql.Scanner。
type JSONScanner struct {
	V any
}

// Scan はsql.Scannerを実装する。NULLや空文字列は対象を変更しない。
func (j JSONScanner) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	return json.Unmarshal(b, j.V)
}

// Lenient は値そのものと、値をJSONエンコードした文字列のどちらでも受け付ける。
// フォーム経由で構造化項目が文字列として送られてくる場合に使う。
type Lenient[T any] struct {
	V T
}

// UnmarshalJSON は文字列の場合に中身をJSONとして再度デコードする。空文字列はゼロ値になる。
func (l *Lenient[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		var zero T
		l.V = zero
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return json.Unmarshal([]byte(s), &l.V)
	}
	return json.Unmarshal(data, &l.V)
}

// Text は文字列と数値のどちらも文字列として受け付ける。
type Text string

// UnmarshalJSON は数値・真偽値をそのままの表記で文字列にする。
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case len(data) > 0 && (data[0] == '{' || data[0] == '['):
		return fmt.Errorf("expected a string or a number")
	default:
		*t = Text(data)
	}
	return nil
}

// Truncate は文字列をルーン単位でmax文字以内に切り詰める。
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// SnakeToCamel はsnake_caseのキーをcamelCaseに変換する。
// アンダースコアを含まないキーはそのまま返す。
func SnakeToCamel(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}
	var b strings.Builder
	upper := false
	for i, r := range key {
		if r == '_' {
			upper = i > 0
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CamelizeKeys はJSONドキュメント内のオブジェクトキーを再帰的にcamelCaseへ変換する。
// 同じ項目がcamelCaseとsnake_caseの両方で送られた場合はcamelCaseを優先する。
func CamelizeKeys(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return json.Marshal(camelize(doc))
}

func camelize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			ck := SnakeToCamel(k)
			if _, exists := out[ck]; exists && ck != k {
				continue
			}
			out[ck] = camelize(child)
		}
		return out
	case []any:
		for i := range val {
			val[i] = camelize(val[i])
		}
		return val
	default:
		return v
	}
}
