package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shouni/manga-adventure-kit/internal/config"
	"github.com/shouni/manga-adventure-kit/pkg/adventure"
	"github.com/shouni/manga-adventure-kit/pkg/domain"
	"github.com/shouni/manga-adventure-kit/pkg/session"
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "生成したキャラクターで分岐ストーリーを遊びます。",
	Long: `キャラクターを生成してからストーリーに入ります。シーンごとにパネルを生成して保存し、
番号で選択肢を選びます。r で失敗したシーンを再試行、q で終了します。`,
	RunE: playCommand,
}

func init() {
	playCmd.Flags().StringVarP(&opts.StoryLocation, "story", "s", config.DefaultStoryFile, "ストーリー定義（JSON / YAML、ファイルパスまたはURL）")
}

func playCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, s, err := newSession(ctx)
	if err != nil {
		return err
	}
	graph, err := app.Loader.Load(ctx, cfg.Options.StoryLocation)
	if err != nil {
		return err
	}
	if _, err := generateCharacter(ctx, s); err != nil {
		return err
	}

	return runAdventure(ctx, s, graph, os.Stdin, os.Stdout)
}

// runAdventure は入力を読みながらストーリーを進めます。
func runAdventure(ctx context.Context, s *session.Session, graph *domain.StoryGraph, in io.Reader, out io.Writer) error {
	reader := bufio.NewScanner(in)
	report := func(err error) {
		if err != nil {
			fmt.Fprintf(out, "⚠️  %s\n", domain.UserMessage(err))
		}
	}

	report(s.EnterAdventure(ctx, graph))
	shown := 0
	for {
		shown = showNewPanels(s, out, shown)

		switch s.AdventureState() {
		case adventure.StateAtTerminalScene:
			fmt.Fprintln(out, "💀 GAME OVER。もう一度遊びますか？ [y/N]")
		case adventure.StateAtScene:
			for i, c := range s.Choices() {
				fmt.Fprintf(out, "  %d) %s\n", i+1, c.Label)
			}
		default:
			fmt.Fprintln(out, "開始シーンを生成できませんでした。r で再試行、q で終了します。")
		}

		fmt.Fprint(out, "> ")
		if !reader.Scan() {
			return reader.Err()
		}
		input := strings.TrimSpace(reader.Text())

		switch {
		case input == "q":
			return nil
		case input == "r":
			report(s.Retry(ctx))
		case s.CanRestart():
			if !strings.EqualFold(input, "y") {
				return nil
			}
			s.Restart()
			shown = 0
			report(s.EnterAdventure(ctx, graph))
		default:
			n, err := strconv.Atoi(input)
			if err != nil {
				fmt.Fprintln(out, "番号を入力してください。")
				continue
			}
			err = s.ChooseOption(ctx, n-1)
			if errors.Is(err, domain.ErrInvalidChoice) {
				fmt.Fprintln(out, "その選択肢はありません。")
				continue
			}
			report(err)
		}
	}
}

// showNewPanels はまだ表示していない履歴のパネルを保存して表示し、表示済みの件数を返します。
func showNewPanels(s *session.Session, out io.Writer, shown int) int {
	history := s.History()
	for i := shown; i < len(history); i++ {
		entry := history[i]
		name := fmt.Sprintf("scene_%02d_%s", i+1, entry.Scene.ID)
		path, err := writeImage(cfg.Options.OutputDir, name, entry.Panel.Image)
		if err != nil {
			fmt.Fprintf(out, "⚠️  %v\n", err)
		}
		fmt.Fprintf(out, "\n📖 %s\n   %s (%.1fs)\n", entry.Scene.Title, path, entry.Panel.Latency.Seconds())
	}
	return len(history)
}
