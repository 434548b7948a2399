package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"codebase-rag/internal/chunker"
	"codebase-rag/internal/collections"
	"codebase-rag/internal/config"
	"codebase-rag/internal/embedding"
	"codebase-rag/internal/filter"
	"codebase-rag/internal/gitrepo"
	"codebase-rag/internal/helper"
	"codebase-rag/internal/index"
	"codebase-rag/internal/index/chromemdb"
	"codebase-rag/internal/index/pgvector"
	"codebase-rag/internal/ingest"
	"codebase-rag/internal/quota"
	"codebase-rag/internal/rag"
	"codebase-rag/internal/retrieval"
)

var (
	configPath string
	verbose    bool
	cfg        *config.Config
)

func main() {
	root := &cobra.Command{
		Use:   "codebase-rag",
		Short: "Ask natural-language questions about a source repository",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

			_ = godotenv.Load()

			var err error
			cfg, err = config.Load(configPath)
			if os.IsNotExist(err) {
				log.Debug().Str("path", configPath).Msg("no config file, using defaults")
				cfg = config.Default()
				return nil
			}
			return err
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "Path to the config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(indexCmd(), askCmd(), collectionsCmd(), storageCmd())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

// openStore builds the configured vector index backend.
func openStore(ctx context.Context) (index.Store, error) {
	switch cfg.Store.Type {
	case "pgvector":
		db, err := pgvector.Connect(cfg.Store.PG)
		if err != nil {
			return nil, err
		}
		store := pgvector.New(db, cfg.Embedding.Dimension)
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize pgvector store: %v", err)
		}
		return store, nil
	case "chromem", "":
		if err := helper.EnsureDir(cfg.Store.Path); err != nil {
			return nil, fmt.Errorf("failed to create store root: %v", err)
		}
		return chromemdb.New(cfg.Store.Path, cfg.Store.Compress)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

func indexCmd() *cobra.Command {
	var (
		repoPath  string
		repoURL   string
		repoName  string
		sessionID string
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Filter, chunk, embed and index a repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (repoPath == "") == (repoURL == "") {
				return fmt.Errorf("exactly one of --repo and --url is required")
			}
			if sessionID == "" {
				var err error
				sessionID, err = helper.NewSessionID()
				if err != nil {
					return err
				}
				log.Info().Str("session_id", sessionID).Msg("generated session id")
			}
			if repoURL != "" {
				if repoName == "" {
					name, err := gitrepo.Name(repoURL)
					if err != nil {
						return err
					}
					repoName = name
				}
				dir, cleanup, err := gitrepo.CloneTemp(cmd.Context(), repoURL, sessionID)
				if err != nil {
					return err
				}
				defer cleanup()
				repoPath = dir
			}
			if repoName == "" {
				repoName = filepath.Base(repoPath)
			}

			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}

			embedder, err := embedding.NewClient(&cfg.Embedding)
			if err != nil {
				return err
			}

			gate := quota.New(cfg.Store.Path, store, cfg.Quota)
			pipeline := ingest.New(
				filter.New(cfg.Filter),
				chunker.New(cfg.Chunking),
				embedder,
				store,
				gate,
				cfg.Embedding.BatchSize,
			)

			report, err := pipeline.Run(cmd.Context(), repoPath, sessionID, repoName)
			if err != nil {
				return err
			}
			helper.PrettyPrint(report)
			return nil
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", "", "Path to a local repository to index")
	cmd.Flags().StringVar(&repoURL, "url", "", "Repository URL to shallow-clone and index")
	cmd.Flags().StringVar(&repoName, "name", "", "Repository name (defaults to the directory or url name)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (generated when omitted)")
	return cmd
}

func askCmd() *cobra.Command {
	var (
		sessionID string
		repoName  string
		query     string
	)
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask a question about an indexed repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			embedder, err := embedding.NewClient(&cfg.Embedding)
			if err != nil {
				return err
			}

			engine := retrieval.NewEngine(embedder, store, cfg.Retrieval)
			assistant := rag.NewRAG(engine, cfg)

			collectionID := collections.IDFor(sessionID, repoName)
			response, err := assistant.Answer(cmd.Context(), collectionID, query)
			if err != nil {
				return err
			}

			fmt.Printf("Query:\n%s\n\n", response.Query)
			fmt.Printf("Sources:\n")
			for _, src := range response.Sources {
				fmt.Printf("  - %s\n", src)
			}
			fmt.Printf("\nAssistant:\n%s\n", response.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id")
	cmd.Flags().StringVar(&repoName, "name", "", "Repository name used at index time")
	cmd.Flags().StringVar(&query, "query", "", "Question to answer")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func collectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Manage stored collections",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all collections with record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			infos, err := store.Collections(cmd.Context())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("No collections found.")
				return nil
			}
			for _, info := range infos {
				fmt.Printf("%s\t%d record(s)\n", info.Name, info.Records)
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <collection>",
		Short: "Delete one collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted collection %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}

func storageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect and reclaim index storage",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show storage usage against the configured limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			manager := quota.New(cfg.Store.Path, store, cfg.Quota)
			snap, err := manager.CurrentUsage(cmd.Context())
			if err != nil {
				return err
			}
			state := manager.Status(snap.TotalBytes, manager.Limit())
			fmt.Printf("Usage: %d / %d bytes (%.1f%%)\n", snap.TotalBytes, manager.Limit(),
				float64(snap.TotalBytes)/float64(manager.Limit())*100)
			fmt.Printf("Status: %s\n", state)
			if state == quota.StatusCritical {
				fmt.Println("Ingestion is blocked until storage is reclaimed.")
			}
			return nil
		},
	}

	reclaim := &cobra.Command{
		Use:   "reclaim <session-id>",
		Short: "Delete every collection of a session and report bytes freed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			manager := quota.New(cfg.Store.Path, store, cfg.Quota)
			result, err := manager.Reclaim(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d collection(s), freed %d bytes\n", result.Deleted, result.BytesFreed)
			return nil
		},
	}

	cmd.AddCommand(status, reclaim)
	return cmd
}
