// Command gqlcachectl administers a SQL-backed cache store the way the
// repo's other single-purpose cmd/ tools administer the primary
// database: connect, run one subcommand, print a result, exit.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"graphqlcache/internal/store"
	"graphqlcache/pkg/config"
	"graphqlcache/pkg/database"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	dbService, err := database.Connect(&database.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     strconv.Itoa(cfg.Database.Port),
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect database: %v\n", err)
		os.Exit(1)
	}
	defer dbService.Close()

	s, err := store.NewSQLStore(database.GetDB(), store.NewMetrics(""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open cache store: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	switch os.Args[1] {
	case "stats":
		runStats(ctx, s)
	case "export":
		runExport(ctx, s)
	case "import":
		runImport(ctx, s)
	case "clear":
		runClear(ctx, s)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: gqlcachectl <stats|export|import|clear>")
}

func runStats(ctx context.Context, s *store.SQLStore) {
	size, err := s.Size(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "size: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("entries: %d\n", size)
}

func runExport(ctx context.Context, s *store.SQLStore) {
	entries, err := s.Export(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		os.Exit(1)
	}
	if err := json.NewEncoder(os.Stdout).Encode(entries); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}

func runImport(ctx context.Context, s *store.SQLStore) {
	var entries map[string]store.Entry
	if err := json.NewDecoder(os.Stdin).Decode(&entries); err != nil {
		fmt.Fprintf(os.Stderr, "decode: %v\n", err)
		os.Exit(1)
	}
	if err := s.Import(ctx, entries); err != nil {
		fmt.Fprintf(os.Stderr, "import: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("imported %d entries\n", len(entries))
}

func runClear(ctx context.Context, s *store.SQLStore) {
	if err := s.Clear(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "clear: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("cleared")
}
