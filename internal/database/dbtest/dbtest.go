// Package dbtest はデータベース統合テスト用のヘルパーを提供する。
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresURL はPostgreSQLコンテナを起動し、接続URLを返す。
// 環境変数 TEST_INTEGRATION が未設定の場合はテストをスキップする。
// コンテナはテスト終了時に停止される。
func PostgresURL(t *testing.T) string {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("統合テストをスキップ: TEST_INTEGRATION が未設定")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("sitepress_test"),
		postgres.WithUsername("sitepress"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("PostgreSQLコンテナの起動に失敗: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("コンテナの停止に失敗: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("接続文字列の取得に失敗: %v", err)
	}

	return dsn
}

// SQLitePath はテストごとの一時ディレクトリ内のSQLiteファイルパスを返す。
func SQLitePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "sitepress.db")
}
