package cmd

import (
	"fmt"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
	"github.com/spf13/cobra"
)

var withPanel bool

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "キャラクターの肖像を生成します。",
	Long: `選択した属性（と任意の顔写真）からキャラクターの肖像を生成して保存します。
--panel を付けると、続けて教室シナリオのパネルを 1 枚生成します。`,
	RunE: generateCommand,
}

func init() {
	generateCmd.Flags().BoolVar(&withPanel, "panel", false, "教室シナリオのパネルも生成します")
}

func generateCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	_, s, err := newSession(ctx)
	if err != nil {
		return err
	}
	if _, err := generateCharacter(ctx, s); err != nil {
		return err
	}
	if !withPanel {
		return nil
	}

	entry, err := s.GenerateDefaultPanel(ctx)
	if err != nil {
		return fmt.Errorf("パネル生成に失敗しました: %s", domain.UserMessage(err))
	}
	path, err := writeImage(cfg.Options.OutputDir, "panel_"+entry.Scene.ID, entry.Panel.Image)
	if err != nil {
		return err
	}
	fmt.Printf("🖼  パネル完成: %s (%.1fs)\n", path, entry.Panel.Latency.Seconds())
	return nil
}
