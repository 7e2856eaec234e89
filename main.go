package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vesper/internal/config"
	"vesper/internal/db"
	"vesper/internal/engine"
	"vesper/internal/gateway"
	"vesper/internal/logging"
	"vesper/internal/models"
	"vesper/internal/ui"
)

var version = "dev"

func main() {
	var (
		modelFlag string
		dataDir   string
		verbose   bool
	)

	root := &cobra.Command{
		Use:     "vesper",
		Short:   "Vesper is a terminal AI chat client",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(modelFlag, dataDir, verbose)
		},
	}
	root.Flags().StringVarP(&modelFlag, "model", "m", "", "model to use for this run")
	root.Flags().StringVar(&dataDir, "data-dir", "", "directory for sessions and logs")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.SilenceUsage = true

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(modelFlag, dataDir string, verbose bool) error {
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	log := logging.New(dataDir, verbose)
	defer log.Sync()

	gw, err := gateway.FromEnv()
	if err != nil {
		return fmt.Errorf("OPENROUTER_API_KEY is not set; get a key at https://openrouter.ai/keys")
	}

	// A broken session database degrades to an in-memory session.
	store, err := db.Open(dataDir, log)
	if err != nil {
		log.Warn("session store unavailable", zap.Error(err))
		store = nil
	}

	eng := engine.New(store, gw, config.DefaultPath(), log)
	eng.Initialize()
	if modelFlag != "" {
		if mdl, _, ok := models.FindModel(modelFlag); ok {
			eng.SetModel(mdl.ID)
		} else {
			log.Warn("unknown model flag ignored", zap.String("model", modelFlag))
		}
	}

	_, runErr := ui.NewProgram(eng, log).Run()

	eng.Flush()
	if store != nil {
		store.Close()
	}
	if runErr != nil {
		return fmt.Errorf("run: %w", runErr)
	}
	return nil
}
