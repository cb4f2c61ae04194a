// Command archivectl administers the dataset archival engine: it inspects
// datasets and locks, drives archival from the command line, and clears locks
// left behind by crashed runs.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"archivecore/internal/core"
	"archivecore/internal/index"
	"archivecore/internal/infra/persistence/memory"
	"archivecore/internal/infra/persistence/postgres"
	"archivecore/internal/infra/persistence/sqlite"
	"archivecore/internal/notify"
	"archivecore/internal/storage"
	"archivecore/pkg/domain"
)

var rootCmd = &cobra.Command{
	Use:   "archivectl",
	Short: "Administer the dataset archival engine",
	Long: `archivectl drives and inspects the dataset publication / long-term-archive
process. Datasets move through a two-phase flow: a kick-off that assigns the
version number and installs a finalizePublication lock, and a finalize step
that stamps release metadata, publishes files, and archives the version.

A crash between the two phases leaves the finalizePublication lock live;
'archivectl locks remove' is the recovery path.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ARCHIVECORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("store", "sqlite", "persistence backend: memory, sqlite, or postgres")
	rootCmd.PersistentFlags().String("db", "archivecore.db", "sqlite database path")
	rootCmd.PersistentFlags().String("dsn", "", "postgres connection string")
	rootCmd.PersistentFlags().String("actor-id", "@admin", "acting user identifier")
	rootCmd.PersistentFlags().Bool("superuser", false, "act as superuser")
	rootCmd.PersistentFlags().String("storage-dir", "", "filesystem storage root for checksum validation")
	rootCmd.PersistentFlags().Bool("validate-files", false, "validate file checksums during finalize")
	rootCmd.PersistentFlags().String("metrics", "expvar", "metrics recorder: expvar or prometheus")
	_ = viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("superuser", rootCmd.PersistentFlags().Lookup("superuser"))
	_ = viper.BindPFlag("storage-dir", rootCmd.PersistentFlags().Lookup("storage-dir"))
	_ = viper.BindPFlag("validate-files", rootCmd.PersistentFlags().Lookup("validate-files"))
	_ = viper.BindPFlag("metrics", rootCmd.PersistentFlags().Lookup("metrics"))
}

func registerCommands() {
	rootCmd.AddCommand(datasetCmd())
	rootCmd.AddCommand(locksCmd())
}

func datasetCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dataset", Short: "Inspect and archive datasets"}
	cmd.AddCommand(datasetListCmd())
	cmd.AddCommand(datasetShowCmd())
	cmd.AddCommand(datasetArchiveCmd())
	cmd.AddCommand(datasetFinalizeCmd())
	return cmd
}

func datasetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *core.Service) error {
				type row struct {
					ID       string `json:"id"`
					GlobalID string `json:"global_id"`
					State    string `json:"state"`
					Locks    int    `json:"locks"`
				}
				datasets := svc.ListDatasets()
				rows := make([]row, 0, len(datasets))
				for _, ds := range datasets {
					state := ""
					if v := ds.LatestVersion(); v != nil {
						state = string(v.State)
					}
					rows = append(rows, row{ID: ds.ID, GlobalID: ds.GlobalID, State: state, Locks: len(ds.Locks)})
				}
				return printJSON(rows)
			})
		},
	}
}

func datasetShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <dataset-id>",
		Short: "Show a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *core.Service) error {
				ds, ok := svc.GetDataset(args[0])
				if !ok {
					return fmt.Errorf("dataset %s not found", args[0])
				}
				return printJSON(ds)
			})
		},
	}
}

func datasetArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <dataset-id>",
		Short: "Kick off archival of the dataset's draft version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *core.Service) error {
				result, err := svc.ArchiveDataset(cmd.Context(), args[0], actingRequest())
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"status":  result.Status,
					"dataset": result.Dataset.GlobalID,
				})
			})
		},
	}
}

func datasetFinalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <dataset-id>",
		Short: "Run the finalize phase for a dataset holding a finalize lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *core.Service) error {
				if err := svc.FinalizeArchive(cmd.Context(), args[0], actingRequest()); err != nil {
					return err
				}
				return printJSON(map[string]any{"finalized": args[0]})
			})
		},
	}
}

func locksCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "locks", Short: "Inspect and clear dataset locks"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list <dataset-id>",
		Short: "List locks held on a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *core.Service) error {
				locks, err := svc.ListLocks(args[0])
				if err != nil {
					return err
				}
				return printJSON(locks)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <dataset-id> <reason>",
		Short: "Remove all locks with the given reason",
		Long: `Removes locks left behind by crashed archival runs. Removing an absent
lock is a no-op.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *core.Service) error {
				removed, err := svc.RemoveLocks(cmd.Context(), args[0], domain.LockReason(args[1]))
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"removed": removed})
			})
		},
	})
	return cmd
}

func actingRequest() core.Request {
	return core.Request{User: domain.User{
		Identifier: viper.GetString("actor-id"),
		Superuser:  viper.GetBool("superuser"),
	}}
}

func withService(fn func(svc *core.Service) error) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	settings := core.DefaultSettings()
	settings.FileValidationEnabled = viper.GetBool("validate-files")

	registry := storage.NewRegistry()
	if dir := viper.GetString("storage-dir"); dir != "" {
		fsStore, err := storage.NewFilesystem(dir)
		if err != nil {
			return err
		}
		registry.Register("file", fsStore, true)
	}

	metrics, err := openMetrics()
	if err != nil {
		return err
	}

	svc := core.NewService(store,
		core.WithLogger(logger.Sugar()),
		core.WithMetrics(metrics),
		core.WithSettings(settings),
		core.WithStorage(registry),
		core.WithIndex(index.NewMemory()),
		core.WithNotifier(notify.NewMemory()),
	)
	return fn(svc)
}

func openMetrics() (core.MetricsRecorder, error) {
	switch viper.GetString("metrics") {
	case "expvar":
		return core.NewExpvarMetricsRecorder("archivectl"), nil
	case "prometheus":
		return core.NewPrometheusMetricsRecorder(nil)
	default:
		return nil, fmt.Errorf("unknown metrics recorder %q", viper.GetString("metrics"))
	}
}

func openStore() (domain.PersistentStore, func(), error) {
	engine := core.NewDefaultRulesEngine()
	switch viper.GetString("store") {
	case "memory":
		return memory.NewStore(engine), func() {}, nil
	case "sqlite":
		store, err := sqlite.NewStore(viper.GetString("db"), engine)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "postgres":
		store, err := postgres.NewStore(viper.GetString("dsn"), engine)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.DB().Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", viper.GetString("store"))
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
