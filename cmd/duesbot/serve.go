package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/duesbot/internal/backup"
	"github.com/dukerupert/duesbot/internal/bot"
	"github.com/dukerupert/duesbot/internal/chat"
	"github.com/dukerupert/duesbot/internal/config"
	"github.com/dukerupert/duesbot/internal/database"
	"github.com/dukerupert/duesbot/internal/dispatch"
	"github.com/dukerupert/duesbot/internal/ledger"
	"github.com/dukerupert/duesbot/internal/logging"
	"github.com/dukerupert/duesbot/internal/scheduler"
	"github.com/dukerupert/duesbot/internal/server"
	"github.com/dukerupert/duesbot/internal/store"
	ws "github.com/dukerupert/duesbot/internal/websocket"
)

const queueSize = 64

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and start tracking payments",
		Long: `Connect to Discord and start tracking payments.

Proof-of-payment messages in the proof channel are credited as they arrive.
The weekly reset and reminder sweep run on their schedule, the status API
listens on DUES_HTTP_ADDR, and the encrypted S3 mirror runs when configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ledgerStore := store.NewLedgerStore(store.NewSQLiteKV(db), cfg.DefaultTarget)
	initial, err := ledgerStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	logger.Info("ledger loaded",
		"members", len(initial.Members),
		"paid", initial.PaidCount(),
		"total_collected", initial.TotalCollected,
	)

	session, err := bot.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	messenger := chat.NewDiscord(session)

	engine := ledger.NewEngine(initial, ledgerStore, messenger, ledger.Config{
		Channels: ledger.Channels{
			Proof:   cfg.Channels.Proof,
			Paid:    cfg.Channels.Paid,
			Unpaid:  cfg.Channels.Unpaid,
			Summary: cfg.Channels.Summary,
		},
		Limits: ledger.Limits{
			UnpaidScan:  cfg.Limits.UnpaidScan,
			SummaryScan: cfg.Limits.SummaryScan,
			Purge:       cfg.Limits.Purge,
		},
		Unit: cfg.Unit,
	}, logger.With("component", "ledger"))

	hub := ws.NewHub(logger.With("component", "websocket"))
	engine.OnChange(hub.LedgerChanged)

	loop := dispatch.New(queueSize, logger.With("component", "dispatch"))

	sched := scheduler.New(engine, store.NewRunStore(db), loop, scheduler.Config{
		ResetWeekday:     cfg.Schedule.ResetWeekday,
		ResetHour:        cfg.Schedule.ResetHour,
		Location:         cfg.Schedule.Location,
		PollInterval:     cfg.Schedule.PollInterval,
		ReminderInterval: cfg.Schedule.ReminderInterval,
	}, logger.With("component", "scheduler"))

	backupMgr := backup.NewManager(cfg.Backup, engine, logger.With("component", "backup"))

	handler := bot.NewHandler(cfg.GuildID, engine, loop, messenger, bot.NewGuildNames(session), logger.With("component", "bot"))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return loop.Run(gctx) })

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		logger.Info("connected to discord", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	removeHandler := bot.Attach(gctx, session, handler)
	if err := session.Open(); err != nil {
		stop()
		g.Wait()
		return fmt.Errorf("open discord session: %w", err)
	}

	sched.Start(gctx)
	backupMgr.Start(gctx)

	if cfg.HTTPAddr != "" {
		srv := server.New(engine, hub, cfg.Unit, logger)
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.HTTPAddr) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		removeHandler()
		sched.Stop()
		backupMgr.Stop()
		if err := session.Close(); err != nil {
			logger.Warn("close discord session", "error", err)
		}
		return nil
	})

	return g.Wait()
}
