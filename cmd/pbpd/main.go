package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mind-engage/pbpd/internal/config"
	"github.com/mind-engage/pbpd/internal/logging"
	"github.com/mind-engage/pbpd/internal/model"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pbpd",
		Short:         "Powder bed packing density predictor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.String("config", "", "config file (yaml)")
	pf.String("models.dir", "", "directory holding model_{ti,ss,al}.yaml")
	pf.String("models.remote_url", "", "model server base URL (overrides models.dir)")
	pf.String("log.level", "", "debug|info|warn|error")
	pf.String("log.format", "", "json|console")

	root.AddCommand(newServeCmd(), newPredictCmd(), newBatchCmd())
	return root
}

// setup loads config (file < env < flags) and builds the logger.
func setup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return cfg, nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func buildRegistry(cfg config.Config, log *zap.Logger) (model.Registry, error) {
	if cfg.ModelsRemoteURL != "" {
		log.Info("using remote model server", zap.String("url", cfg.ModelsRemoteURL))
		return model.NewRemote(model.RemoteConfig{
			BaseURL:      cfg.ModelsRemoteURL,
			Timeout:      cfg.ModelsTimeout,
			TokenURL:     cfg.ModelsTokenURL,
			ClientID:     cfg.ModelsClientID,
			ClientSecret: cfg.ModelsClientSecret,
		}), nil
	}
	reg, err := model.LoadDir(cfg.ModelsDir)
	if err != nil {
		return nil, err
	}
	groups := reg.Groups()
	loaded := make([]string, 0, len(groups))
	for _, g := range groups {
		loaded = append(loaded, g.Code())
	}
	log.Info("models loaded", zap.String("dir", cfg.ModelsDir), zap.Strings("groups", loaded))
	return reg, nil
}
