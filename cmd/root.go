package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/shouni/manga-adventure-kit/internal/config"
	"github.com/spf13/cobra"
)

var (
	opts config.RunOptions
	cfg  *config.Config

	textModel      string
	imageModel     string
	requestTimeout time.Duration
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:               "manga-adventure",
	Short:             "属性と顔写真から漫画キャラクターを生成し、分岐ストーリーを遊びます。",
	SilenceUsage:      true,
	PersistentPreRunE: preRunAppE,
}

// addAppFlags はすべてのコマンドに共通するフラグを定義します。
func addAppFlags(root *cobra.Command) {
	// --- キャラクター属性 ---
	root.PersistentFlags().StringVar(&opts.Gender, "gender", "", "性別 (male / female / non-binary)")
	root.PersistentFlags().StringVar(&opts.HairStyle, "hair-style", "", "髪型 (short, long, spiky ...)")
	root.PersistentFlags().StringVar(&opts.HairColor, "hair-color", "", "髪色")
	root.PersistentFlags().StringVar(&opts.Personality, "personality", "", "性格")
	root.PersistentFlags().StringVar(&opts.Outfit, "outfit", "", "服装")
	root.PersistentFlags().StringVar(&opts.Weapon, "weapon", "", "武器 (none で武器なし)")

	// --- 顔写真 ---
	root.PersistentFlags().StringVar(&opts.FaceFile, "face", "", "似せる顔写真のファイルパス")
	root.PersistentFlags().StringVar(&opts.FaceURL, "face-url", "", "似せる顔写真のURL")

	// --- 出力 ---
	root.PersistentFlags().StringVarP(&opts.OutputDir, "output-dir", "o", config.DefaultOutputDir, "生成画像の保存先ディレクトリ")

	// --- AIモデル・実行制御 ---
	root.PersistentFlags().StringVar(&textModel, "model", "", "顔の説明に使う Gemini モデル名（環境変数 GEMINI_MODEL より優先）")
	root.PersistentFlags().StringVar(&imageModel, "image-model", "", "画像生成に使う Gemini モデル名（環境変数 IMAGE_GEMINI_MODEL より優先）")
	root.PersistentFlags().DurationVar(&requestTimeout, "request-timeout", 0, "生成リクエスト 1 回あたりのタイムアウト")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "デバッグログを出力します")
}

// preRunAppE は設定を読み込み、フラグで上書きしてから必須項目を確認します。
func preRunAppE(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg = config.LoadConfig()
	if textModel != "" {
		cfg.Generation.TextModel = textModel
	}
	if imageModel != "" {
		cfg.Generation.ImageModel = imageModel
	}
	if requestTimeout > 0 {
		cfg.Generation.RequestTimeout = requestTimeout
	}
	cfg.Options = opts

	if opts.FaceFile != "" && opts.FaceURL != "" {
		return fmt.Errorf("--face と --face-url は同時に指定できません")
	}
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("エラー: 環境変数 GEMINI_API_KEY が設定されていません。Gemini APIの利用には必須です")
	}
	return nil
}

// Execute はアプリケーションのエントリポイントです。
func Execute() {
	addAppFlags(rootCmd)
	rootCmd.AddCommand(generateCmd, playCmd, storyboardCmd)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
