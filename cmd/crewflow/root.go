package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BaSui01/crewflow/config"
)

// rootOptions 是所有子命令共享的全局参数
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "crewflow",
		Short: "crewflow: throttled, resumable task pipelines",
		Long: `crewflow runs a fixed sequence of named tasks against one input bundle.
Every outbound model call shares a single process-wide rate limiter and a
bounded retry policy. Each run is recorded so it can be replayed from any
task using the original inputs.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newReplayCmd(opts))
	cmd.AddCommand(newRunsCmd(opts))

	return cmd
}

// loadConfig 按 默认值 → 配置文件 → 环境变量 的顺序加载并校验配置
func (o *rootOptions) loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if o.configPath != "" {
		loader = loader.WithConfigPath(o.configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
