// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
	RecordContentView(family string)
	RecordDownload()
	RecordLead()
	RecordLoginFailure()
	RecordFacetCache(family string, hit bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	contentViews  *prometheus.CounterVec
	downloads     prometheus.Counter
	leads         prometheus.Counter
	loginFailures prometheus.Counter
	facetHits     *prometheus.CounterVec
	facetMisses   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitepress_http_requests_total",
			Help: "ルート・メソッド・ステータス別のHTTPリクエスト数",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitepress_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		contentViews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitepress_content_views_total",
			Help: "公開コンテンツの閲覧数",
		}, []string{"family"}),
		downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitepress_downloads_total",
			Help: "ホワイトペーパーのダウンロード数",
		}),
		leads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitepress_leads_total",
			Help: "取得したリードの数",
		}),
		loginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitepress_login_failures_total",
			Help: "ログイン失敗の合計数",
		}),
		facetHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitepress_facet_cache_hits_total",
			Help: "ファセットキャッシュのヒット数",
		}, []string{"family"}),
		facetMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitepress_facet_cache_misses_total",
			Help: "ファセットキャッシュのミス数",
		}, []string{"family"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.contentViews,
		c.downloads,
		c.leads,
		c.loginFailures,
		c.facetHits,
		c.facetMisses,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
// routeにはchiのルートパターンを渡し、ラベルの種類が増えすぎないようにする。
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordContentView は閲覧数を記録する。
func (c *Collector) RecordContentView(family string) {
	c.contentViews.WithLabelValues(family).Inc()
}

// RecordDownload はダウンロードを記録する。
func (c *Collector) RecordDownload() {
	c.downloads.Inc()
}

// RecordLead はリード取得を記録する。
func (c *Collector) RecordLead() {
	c.leads.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFailures.Inc()
}

// RecordFacetCache はファセットキャッシュのヒット・ミスを記録する。
func (c *Collector) RecordFacetCache(family string, hit bool) {
	if hit {
		c.facetHits.WithLabelValues(family).Inc()
		return
	}
	c.facetMisses.WithLabelValues(family).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
