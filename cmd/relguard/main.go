// Command relguard is a small playground for the authorization engine: it
// wires a registry and the in-memory tuple store and walks through a
// document-sharing scenario, logging each decision.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/relguard/relguard/internal/datastore/memdb"
	"github.com/relguard/relguard/internal/logging"
	"github.com/relguard/relguard/pkg/cache"
	"github.com/relguard/relguard/pkg/engine"
	"github.com/relguard/relguard/pkg/policy"
	"github.com/relguard/relguard/pkg/schema"
	"github.com/relguard/relguard/pkg/tuple"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "relguard",
		Short:         "relationship-based authorization engine",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	demo := &cobra.Command{
		Use:   "demo",
		Short: "run the document-sharing walkthrough",
		RunE:  runDemo,
	}
	demo.Flags().Bool("debug", false, "enable debug logging")
	root.AddCommand(demo)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDemo(cmd *cobra.Command, _ []string) error {
	level := zerolog.InfoLevel
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = zerolog.DebugLevel
	}
	logging.SetGlobalLogger(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger())

	ctx := context.Background()

	registry := policy.NewRegistry()
	registry.Register("document", documentPolicy())
	registry.Register("team", teamPolicy())

	store, err := memdb.New()
	if err != nil {
		return err
	}
	defer store.Close()

	cacheStore, err := cache.NewMemoryStore(&cache.Config{MaxCost: 10_000, DefaultTTL: time.Minute})
	if err != nil {
		return err
	}
	defer cacheStore.Close()

	eng := engine.New(registry, store, engine.WithCacheStore(cacheStore))

	alice := tuple.ObjectRef{Type: "user", ID: "alice"}
	bob := tuple.ObjectRef{Type: "user", ID: "bob"}
	team := tuple.ObjectRef{Type: "team", ID: "eng"}
	doc := tuple.ObjectRef{Type: "document", ID: "launch-plan"}

	if err := eng.Grant(ctx, alice, "owner", doc); err != nil {
		return err
	}
	if err := eng.Grant(ctx, bob, "member", team); err != nil {
		return err
	}

	report(ctx, eng, alice, "view", doc)
	report(ctx, eng, alice, "edit", doc)
	report(ctx, eng, bob, "view", doc)

	logging.Info().Msg("granting the team viewer on the document")
	if err := eng.Grant(ctx, team, "viewer", doc); err != nil {
		return err
	}
	report(ctx, eng, bob, "view", doc)
	report(ctx, eng, bob, "edit", doc)

	logging.Info().Msg("revoking bob's team membership")
	if _, err := eng.Revoke(ctx, bob, "member", team); err != nil {
		return err
	}
	report(ctx, eng, bob, "view", doc)

	logging.Info().
		Uint64("hits", cacheStore.Hits()).
		Uint64("misses", cacheStore.Misses()).
		Msg("cache stats")
	return nil
}

func report(ctx context.Context, eng *engine.Engine, subject tuple.ObjectRef, action string, object tuple.ObjectRef) {
	logging.Info().
		Stringer("subject", subject).
		Str("action", action).
		Stringer("object", object).
		Bool("allowed", eng.Can(ctx, subject, action, object, nil)).
		Msg("decision")
}

func documentPolicy() *policy.Policy {
	p := policy.New("document")
	p.MustRelation("viewer", schema.Declaration{Via: map[string]string{"member": "team"}})
	p.MustRelation("editor", schema.Declaration{Requires: []string{"viewer"}})
	p.MustRelation("owner", schema.Declaration{Requires: []string{"editor", "viewer"}})

	p.Permission("view").Allow(func(e *policy.Eval) (bool, error) {
		return e.HasRelation("viewer"), nil
	})
	p.Permission("edit").Allow(func(e *policy.Eval) (bool, error) {
		return e.HasRelation("editor"), nil
	})
	return p
}

func teamPolicy() *policy.Policy {
	p := policy.New("team")
	p.MustRelation("member", schema.Declaration{})
	p.MustRelation("admin", schema.Declaration{Requires: []string{"member"}})
	return p
}
