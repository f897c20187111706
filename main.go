package main

import (
	"github.com/shouni/manga-adventure-kit/cmd"
)

// main はエントリーポイントです。コマンドライン解析と実行は cmd パッケージに委ねます。
func main() {
	cmd.Execute()
}
