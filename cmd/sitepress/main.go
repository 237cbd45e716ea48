// Command sitepress はコーポレートサイト向けコンテンツAPIのエントリーポイント。
//
// 使い方:
//
//	sitepress [serve|worker|migrate|seed|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/sitepress/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sitepress: %v\n", err)
		os.Exit(1)
	}
}
