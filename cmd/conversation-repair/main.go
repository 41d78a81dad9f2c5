// Command conversation-repair recomputes cached last-message pointers and
// clamps unread counters. It runs once and exits non-zero if any
// conversation failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"wadesk-backend/internal/repository/cockroach"
	chatService "wadesk-backend/internal/service/chat"
	"wadesk-backend/pkg/config"
	"wadesk-backend/pkg/database"
	"wadesk-backend/pkg/logger"
)

func main() {
	conversationID := flag.String("conversation", "", "repair a single conversation id")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stdout"}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := database.NewCockroachDB(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
	}
	defer db.Close()

	// Repair touches only the stores; delivery and push stay unset
	svc := chatService.NewService(
		cockroach.NewConversationRepository(db.Pool),
		cockroach.NewMessageRepository(db.Pool),
		nil, nil, nil, nil, nil,
		chatService.Options{Producer: "conversation-repair"},
	)

	if *conversationID != "" {
		result, err := svc.RepairConversation(ctx, *conversationID)
		if err != nil {
			logger.Fatal("Repair failed", zap.String("conversation_id", *conversationID), zap.Error(err))
		}
		logger.Info("Conversation repaired",
			zap.String("conversation_id", result.ConversationID),
			zap.Bool("last_fixed", result.LastFixed),
			zap.Int("clamped", len(result.ClampedCounter)))
		return
	}

	summary, err := svc.RepairAll(ctx)
	if err != nil {
		logger.Fatal("Repair pass failed", zap.Error(err))
	}
	logger.Info("Repair pass finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("repaired", summary.Repaired),
		zap.Int("failed", summary.Failed))
	if summary.Failed > 0 {
		logger.Sync()
		os.Exit(1)
	}
}
