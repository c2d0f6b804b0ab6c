// Command duetrack is the bill-tracker sync CLI: it reconciles the local
// SQLite store with the per-user remote document store, runs the one-time
// migration, and serves a realtime observability dashboard.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/duetrack/duetrack/internal/device"
	"github.com/duetrack/duetrack/internal/kvstore"
	"github.com/duetrack/duetrack/internal/localdb"
	"github.com/duetrack/duetrack/internal/netcheck"
	"github.com/duetrack/duetrack/internal/reminder"
	"github.com/duetrack/duetrack/internal/remote"
	"github.com/duetrack/duetrack/internal/sync"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "duetrack",
	Short: "Local-first bill tracker sync",
	Long: `duetrack keeps a device-local SQLite bill database reconciled with a
per-user cloud document store.

The local database is always authoritative for this device; sync pulls
remote changes (last write wins per bill), drains mutations queued while
offline, and pushes local edits back. Configuration comes from flags,
DUETRACK_* environment variables, or $HOME/.duetrack.yaml.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.duetrack.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (default $HOME/.duetrack)")
	rootCmd.PersistentFlags().String("remote-url", "", "remote document store base URL (empty uses an in-memory store)")
	rootCmd.PersistentFlags().String("user", "", "account id whose collections to sync")
	rootCmd.PersistentFlags().String("probe-url", "https://clients3.google.com/generate_204", "connectivity probe URL")
	rootCmd.PersistentFlags().String("log-file", "", "append logs to a rotating file instead of stderr")

	for _, key := range []string{"data-dir", "remote-url", "user", "probe-url", "log-file"} {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key))
	}

	rootCmd.AddCommand(billCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(resetCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".duetrack")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DUETRACK")
	viper.AutomaticEnv()

	// A missing config file is fine; flags and env cover everything.
	_ = viper.ReadInConfig()
}

func dataDir() string {
	if dir := viper.GetString("data-dir"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".duetrack"
	}
	return filepath.Join(home, ".duetrack")
}

func newLogger(prefix string) *log.Logger {
	if path := viper.GetString("log-file"); path != "" {
		return log.New(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		}, prefix, log.LstdFlags)
	}
	return log.New(os.Stderr, prefix, log.LstdFlags)
}

// env is the assembled runtime for one CLI invocation.
type env struct {
	db        *localdb.DB
	kv        *kvstore.Store
	scheduler *reminder.Memory
	syncer    *sync.Syncer
	user      string
}

func (e *env) Close() {
	_ = e.db.Close()
}

func openEnv() (*env, error) {
	dir := dataDir()

	db, err := localdb.Open(filepath.Join(dir, "duetrack.db"))
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	kv, err := kvstore.Open(filepath.Join(dir, "kv.json"))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	deviceID, err := device.ID(kv)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	var store remote.Store
	if base := viper.GetString("remote-url"); base != "" {
		store = remote.NewHTTPStore(base, deviceID, newLogger("[remote] "))
	} else {
		// No remote configured: sync against an in-process store. Writes
		// vanish with the process; useful for trying the cycle out.
		store = remote.NewMemoryBackend().Client(deviceID)
	}

	scheduler := reminder.NewMemory()
	syncer, err := sync.New(sync.Config{
		DB:        db,
		Remote:    store,
		KV:        kv,
		Oracle:    &netcheck.HTTPOracle{URL: viper.GetString("probe-url")},
		Scheduler: scheduler,
		Logger:    newLogger("[sync] "),
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &env{
		db:        db,
		kv:        kv,
		scheduler: scheduler,
		syncer:    syncer,
		user:      viper.GetString("user"),
	}, nil
}

func requireUser(e *env) string {
	if e.user == "" {
		fmt.Fprintf(os.Stderr, "Error: no user configured (set --user or DUETRACK_USER)\n")
		os.Exit(1)
	}
	return e.user
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
