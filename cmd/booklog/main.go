// Command booklog は読書記録サービスのAPIサーバー・ワーカー・マイグレーションを起動する。
//
//	booklog [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/booklog/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "booklog: %v\n", err)
		os.Exit(1)
	}
}
