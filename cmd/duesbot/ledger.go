package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dukerupert/duesbot/internal/backup"
	"github.com/dukerupert/duesbot/internal/config"
	"github.com/dukerupert/duesbot/internal/database"
	"github.com/dukerupert/duesbot/internal/model"
	"github.com/dukerupert/duesbot/internal/store"
)

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and maintain the stored ledger (run with the bot stopped)",
	}
	cmd.AddCommand(ledgerShowCmd())
	cmd.AddCommand(ledgerImportCmd())
	cmd.AddCommand(ledgerRestoreCmd())
	return cmd
}

// openLedgerStore opens the local database and the ledger store on top of it.
func openLedgerStore() (*store.LedgerStore, backup.Config, func() error, error) {
	dbPath, target, bk, err := config.LoadStorage()
	if err != nil {
		return nil, backup.Config{}, nil, err
	}
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, backup.Config{}, nil, fmt.Errorf("open database: %w", err)
	}
	return store.NewLedgerStore(store.NewSQLiteKV(db), target), bk, db.Close, nil
}

func ledgerShowCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ls, _, closeDB, err := openLedgerStore()
			if err != nil {
				return err
			}
			defer closeDB()

			l, err := ls.Load(cmd.Context())
			if err != nil {
				return err
			}
			return writeLedger(cmd.OutOrStdout(), l, asJSON)
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON instead of YAML")
	return cmd
}

type ledgerReport struct {
	model.Ledger `yaml:",inline"`
	PaidCount    int `json:"paid_count" yaml:"paid_count"`
	UnpaidCount  int `json:"unpaid_count" yaml:"unpaid_count"`
}

func writeLedger(w io.Writer, l model.Ledger, asJSON bool) error {
	report := ledgerReport{Ledger: l, PaidCount: l.PaidCount(), UnpaidCount: l.UnpaidCount()}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func ledgerImportCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "import <meta_data.json>",
		Short: "Import a ledger file written by the previous bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			imported, err := store.ImportLegacy(f)
			if err != nil {
				return err
			}

			ls, _, closeDB, err := openLedgerStore()
			if err != nil {
				return err
			}
			defer closeDB()

			return importLedger(cmd.Context(), ls, imported, force, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite a ledger that already has members")
	return cmd
}

// importLedger saves imported unless the stored ledger already has members
// and force is not set.
func importLedger(ctx context.Context, ls *store.LedgerStore, imported model.Ledger, force bool, out io.Writer) error {
	current, err := ls.Load(ctx)
	if err != nil {
		return err
	}
	if len(current.Members) > 0 && !force {
		return fmt.Errorf("ledger already has %d members; use --force to overwrite", len(current.Members))
	}
	if err := ls.Save(ctx, imported); err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %d members (%d paid, %d collected)\n",
		len(imported.Members), imported.PaidCount(), imported.TotalCollected)
	return nil
}

func ledgerRestoreCmd() *cobra.Command {
	var passphrase string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the local ledger with the encrypted S3 mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ls, bk, closeDB, err := openLedgerStore()
			if err != nil {
				return err
			}
			defer closeDB()

			if passphrase != "" {
				bk.Passphrase = passphrase
			}
			mgr := backup.NewManager(bk, nil, slog.Default())
			l, err := mgr.Restore(cmd.Context(), ls)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d members from s3://%s/%s\n", len(l.Members), bk.Bucket, bk.Key())
			return nil
		},
	}
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "mirror passphrase (defaults to DUES_MIRROR_PASSPHRASE)")
	return cmd
}
