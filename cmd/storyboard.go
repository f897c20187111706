package cmd

import (
	"fmt"

	"github.com/shouni/manga-adventure-kit/internal/config"
	"github.com/shouni/manga-adventure-kit/pkg/domain"
	"github.com/spf13/cobra"
)

var storyboardCmd = &cobra.Command{
	Use:   "storyboard",
	Short: "ストーリーの全シーンのパネルを一括生成します。",
	Long:  "キャラクターを生成してから、ストーリー定義のすべてのシーンを並列（レート制限付き）に生成して保存します。",
	RunE:  storyboardCommand,
}

func init() {
	storyboardCmd.Flags().StringVarP(&opts.StoryLocation, "story", "s", config.DefaultStoryFile, "ストーリー定義（JSON / YAML、ファイルパスまたはURL）")
}

func storyboardCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, s, err := newSession(ctx)
	if err != nil {
		return err
	}
	graph, err := app.Loader.Load(ctx, cfg.Options.StoryLocation)
	if err != nil {
		return err
	}
	character, err := generateCharacter(ctx, s)
	if err != nil {
		return err
	}

	entries, err := app.NewStoryboard(s.Orchestrator()).Render(ctx, graph, character.Reference)
	if err != nil {
		return fmt.Errorf("ストーリーボードの生成に失敗しました: %s", domain.UserMessage(err))
	}

	var total float64
	for _, entry := range entries {
		path, err := writeImage(cfg.Options.OutputDir, "storyboard_"+entry.Scene.ID, entry.Panel.Image)
		if err != nil {
			return err
		}
		total += entry.Panel.CostUSD
		fmt.Printf("📖 %-20s %s\n", entry.Scene.Title, path)
	}
	fmt.Printf("✨ %d シーンを生成しました（推定コスト $%.3f）\n", len(entries), total)
	return nil
}
