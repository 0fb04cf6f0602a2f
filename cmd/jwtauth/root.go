package main

import (
	"github.com/MrEthical07/jwtauth/config"
	"github.com/MrEthical07/jwtauth/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	configPath string
	envFiles   []string
}

func (o *options) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath, o.envFiles...)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "jwtauth"})
	return cfg, log, nil
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "jwtauth",
		Short:         "JWT bearer authentication and refresh token service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", envOr("JWTAUTH_CONFIG", ""), "YAML configuration file (env JWTAUTH_CONFIG)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before JWTAUTH_* overrides")

	root.AddCommand(
		newServeCmd(opts),
		newKeygenCmd(),
		newIssueCmd(opts),
		newDecodeCmd(opts),
		newLoadtestCmd(),
		newBenchcheckCmd(),
	)
	return root
}
