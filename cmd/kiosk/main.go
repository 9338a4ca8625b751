package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"PRESENCE-backend/internal/kiosk"
	"PRESENCE-backend/internal/kiosk/tui"
	"PRESENCE-backend/internal/platform/logger"
)

func main() {
	api := flag.String("api", "https://localhost:8443/api/v2", "API ルート")
	key := flag.String("key", os.Getenv("PRESENCE_KIOSK_KEY"), "キオスクキー（既定は $PRESENCE_KIOSK_KEY）")
	logPath := flag.String("log", "kiosk.log", "ログ出力先（画面に出すと描画が崩れるのでファイル）")
	level := flag.String("level", "info", "ログレベル")
	flag.Parse()

	if *key == "" {
		fmt.Fprintln(os.Stderr, "kiosk key is required (-key or PRESENCE_KIOSK_KEY)")
		os.Exit(2)
	}

	log, err := logger.New(*level, "json", *logPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := kiosk.NewClient(*api, *key, 10*time.Second)
	sub, err := kiosk.NewSubscriber(*api, *key, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	model := tui.NewModel(ctx, client, sub, lipgloss.DefaultRenderer(), log)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		log.Error("kiosk stopped", zap.Error(err))
		fmt.Println("Error running program:", err)
		os.Exit(1)
	}
}
