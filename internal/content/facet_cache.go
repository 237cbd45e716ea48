package content

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// FacetCache はファセット値の一覧をTTL付きLRUで保持する。
// 各ファミリーのサービスが1つずつ持ち、書き込みのたびに全体を破棄する。
type FacetCache struct {
	lru    *expirable.LRU[string, []string]
	family string
	rec    Recorder
}

// NewFacetCache はFacetCacheを生成する。sizeが0以下の場合は既定値を使う。
func NewFacetCache(family string, size int, ttl time.Duration, rec Recorder) *FacetCache {
	if size <= 0 {
		size = 64
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &FacetCache{
		lru:    expirable.NewLRU[string, []string](size, nil, ttl),
		family: family,
		rec:    rec,
	}
}

// Get はキャッシュされた値のコピーを返す。
func (c *FacetCache) Get(facet string) ([]string, bool) {
	values, ok := c.lru.Get(facet)
	c.rec.RecordFacetCache(c.family, ok)
	if !ok {
		return nil, false
	}
	return cloneStrings(values), true
}

// Set は値を保存する。
func (c *FacetCache) Set(facet string, values []string) {
	c.lru.Add(facet, cloneStrings(values))
}

// Invalidate はすべてのエントリを破棄する。
func (c *FacetCache) Invalidate() {
	c.lru.Purge()
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
