// Package results lists matches recorded by the match command.
package results

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/louisbranch/matchbox/internal/match/storage"
	"github.com/louisbranch/matchbox/internal/match/storage/sqlite"
	entrypoint "github.com/louisbranch/matchbox/internal/platform/cmd"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
	"github.com/louisbranch/matchbox/internal/platform/errors/i18n"
)

// Config holds results command configuration.
type Config struct {
	DBPath  string `env:"DB" envDefault:"matchbox.db"`
	Limit   int    `env:"RESULTS_LIMIT" envDefault:"20"`
	MatchID string `env:"RESULTS_MATCH"`
	Lang    string `env:"LANG_TAG" envDefault:"en-US"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite file written by the match command")
	fs.IntVar(&cfg.Limit, "limit", cfg.Limit, "Number of recent matches to list")
	fs.StringVar(&cfg.MatchID, "match", cfg.MatchID, "Show one match with its move log")
	fs.StringVar(&cfg.Lang, "lang", cfg.Lang, "Language tag used to format numbers and dates")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run prints recent matches, or one match when cfg.MatchID is set.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return platformerrors.New(platformerrors.CodeInvalidConfig, "results database path is required")
	}
	tag, err := language.Parse(cfg.Lang)
	if err != nil {
		return platformerrors.Wrap(platformerrors.CodeInvalidConfig, "parse language", err)
	}
	loc := locale{printer: message.NewPrinter(tag), catalog: i18n.GetCatalog(cfg.Lang)}

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceResults, func(ctx context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return platformerrors.Wrap(platformerrors.CodeStorage, "open results store", err)
		}
		defer store.Close()

		if strings.TrimSpace(cfg.MatchID) != "" {
			return showMatch(ctx, store, cfg.MatchID, loc, out)
		}
		return listMatches(ctx, store, cfg.Limit, loc, out)
	})
}

// locale formats numbers and reason descriptions for one language.
type locale struct {
	printer *message.Printer
	catalog *i18n.Catalog
}

func listMatches(ctx context.Context, store storage.MatchStore, limit int, loc locale, out io.Writer) error {
	records, err := store.ListMatches(ctx, limit)
	if err != nil {
		return platformerrors.Wrap(platformerrors.CodeStorage, "list matches", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "no matches recorded")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MATCH\tGAME\tENDED\tOUTCOME\tWINNER\tSTEPS\tRESULT")
	for _, r := range records {
		loc.printer.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.Game, r.EndedAt.Local().Format(time.DateTime), r.Outcome, dash(r.Winner), r.Steps, r.Summary)
	}
	return tw.Flush()
}

func showMatch(ctx context.Context, store storage.MatchStore, matchID string, loc locale, out io.Writer) error {
	record, err := store.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return platformerrors.WithMetadata(platformerrors.CodeNotFound, "match not found", map[string]string{"match": matchID})
		}
		return platformerrors.Wrap(platformerrors.CodeStorage, "get match", err)
	}
	moves, err := store.ListMoves(ctx, matchID)
	if err != nil {
		return platformerrors.Wrap(platformerrors.CodeStorage, "list moves", err)
	}

	fmt.Fprintf(out, "match %s: %s\n", record.ID, record.Game)
	for _, p := range record.Players {
		role := ""
		if p.Role != "" {
			role = " (" + p.Role + ")"
		}
		fmt.Fprintf(out, "  %s%s: %s\n", p.ID, role, p.Program)
	}
	fmt.Fprintf(out, "result: %s\n", record.Summary)
	fmt.Fprintf(out, "outcome: %s\n", record.Outcome)
	if record.Reason != "" {
		fmt.Fprintf(out, "reason: %s %s\n", record.Reason, record.Detail)
	}
	for _, f := range record.Forfeits {
		description := loc.catalog.Format(platformerrors.Code(f.Reason), map[string]string{
			"player":     f.PlayerID,
			"time_index": loc.printer.Sprint(f.TimeIndex),
		})
		loc.printer.Fprintf(out, "  %s forfeited at time index %d: %s (%s)\n", f.PlayerID, f.TimeIndex, f.Reason, description)
	}
	loc.printer.Fprintf(out, "steps: %d in %v\n", record.Steps, record.EndedAt.Sub(record.StartedAt))

	if len(moves) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tPLAYER\tMOVE")
	for _, m := range moves {
		payload := m.Payload
		if m.Substituted {
			payload += " (default)"
		}
		loc.printer.Fprintf(tw, "%d\t%d\t%s\t%s\n", m.Seq, m.TimeIndex, m.PlayerID, payload)
	}
	return tw.Flush()
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
