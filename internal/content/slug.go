package content

import (
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Slugify はタイトルなどからURL用のslugを生成する。
// 小文字化し、英数字以外の連続を1つのハイフンにまとめ、前後のハイフンを取り除く。
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// ValidSlug はslugの形式が正しいかどうかを返す。
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}
