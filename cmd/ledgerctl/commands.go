// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/bcem/accessbot/internal/audit"
	"github.com/bcem/accessbot/internal/config"
	"github.com/bcem/accessbot/internal/ledger"
	"github.com/bcem/accessbot/internal/phone"
)

// decisionLog is the read side of the decision store.
type decisionLog interface {
	Recent(ctx context.Context, subjectID int64, limit int) ([]audit.Outcome, error)
}

// app opens the backends lazily so commands that need neither stay offline.
type app struct {
	gateway   func(ctx context.Context) (*ledger.Gateway, error)
	decisions func(ctx context.Context) (decisionLog, func(), error)
}

func defaultApp() *app {
	return &app{
		gateway: func(ctx context.Context) (*ledger.Gateway, error) {
			cfg, err := config.Read()
			if err != nil {
				return nil, err
			}
			if !cfg.Ledger.Enabled() {
				return nil, errors.New("GOOGLE_SHEET_ID and GOOGLE_CREDENTIALS_FILE are required")
			}
			store, err := ledger.NewSheetsStore(ctx, cfg.Ledger.SpreadsheetID, cfg.Ledger.CredentialsFile)
			if err != nil {
				return nil, err
			}
			return ledger.NewGateway(store, cfg.Ledger.SheetName, cfg.Ledger.RoommateSheet), nil
		},
		decisions: func(ctx context.Context) (decisionLog, func(), error) {
			cfg, err := config.Read()
			if err != nil {
				return nil, nil, err
			}
			if cfg.DatabaseURL == "" {
				return nil, nil, errors.New("DATABASE_URL is required")
			}
			pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return nil, nil, fmt.Errorf("create Postgres pool: %w", err)
			}
			store, err := audit.NewStore(ctx, pool)
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
			return store, pool.Close, nil
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ledgerctl",
		Short:        "Inspect the occupant ledger and the decision log",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newNormalizeCmd(),
		newLookupCmd(a),
		newCheckCmd(a),
		newDecisionsCmd(a),
	)
	return rootCmd
}

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <phone>...",
		Short: "Print the canonical form of phone numbers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range args {
				canonical := phone.Normalize(raw)
				if canonical == "" {
					canonical = "invalid"
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", raw, canonical); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newLookupCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "lookup <phone|@username>",
		Short: "Find an apartment owner the way roommate requests do",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.gateway(cmd.Context())
			if err != nil {
				return err
			}
			owner, found, err := g.FindOwner(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("lookup: %w", err)
			}
			if !found {
				return fmt.Errorf("no owner matches %q", args[0])
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(owner)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "name\t%s\n", owner.Name)
			fmt.Fprintf(w, "username\t%s\n", owner.Username)
			fmt.Fprintf(w, "phone\t%s\n", owner.Phone)
			fmt.Fprintf(w, "apartment\t%s\n", owner.ApartmentID)
			fmt.Fprintf(w, "telegram id\t%d\n", owner.SubjectID)
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the main sheet header has the columns owner lookups need",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := a.gateway(cmd.Context())
			if err != nil {
				return err
			}
			missing, err := g.Check(cmd.Context())
			if err != nil {
				return fmt.Errorf("check: %w", err)
			}
			if len(missing) > 0 {
				names := make([]string, len(missing))
				for i, col := range missing {
					names[i] = col.String()
				}
				return fmt.Errorf("header lacks columns: %s", strings.Join(names, ", "))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}
}

func newDecisionsCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "decisions [subject-id]",
		Short: "List recent approval outcomes, optionally for one applicant",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var subjectID int64
			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("parse subject id %q: %w", args[0], err)
				}
				subjectID = id
			}

			log, closeFn, err := a.decisions(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			outcomes, err := log.Recent(cmd.Context(), subjectID, limit)
			if err != nil {
				return fmt.Errorf("list decisions: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(outcomes)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AT\tEVENT\tSTATUS\tSUBJECT\tACTOR\tDETAIL")
			for _, o := range outcomes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					o.At.Format(time.RFC3339), o.Event, o.Status, o.SubjectID, o.Actor, o.Detail)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of outcomes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}
