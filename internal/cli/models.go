package cli

import (
	"fmt"
	"os"

	"github.com/epubtrans/epubtrans/internal/config"
	"github.com/epubtrans/epubtrans/pkg/providers/ollama"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewModelsCommand 创建 models 命令，列出 Ollama 服务上可用的模型
func NewModelsCommand() *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "列出 Ollama 服务上可用的模型",
		Long: `列出 Ollama 服务上可用的模型。

Examples:
  # 列出本地 Ollama 的模型
  epubtrans models

  # 列出远程 Ollama 的模型
  epubtrans models --ollama-url http://192.168.1.10:11434`,
		RunE: runModelsCommand,
	}
	return modelsCmd
}

func runModelsCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	updateConfigFromFlags(cmd, cfg)

	provider := ollama.New(ollama.Config{BaseURL: cfg.Ollama.BaseURL})
	models, err := provider.ListModels(cmd.Context())
	if err != nil {
		return fmt.Errorf("获取模型列表失败 (服务地址 %s): %w", cfg.Ollama.BaseURL, err)
	}

	if len(models) == 0 {
		fmt.Println("Ollama 服务上没有任何模型，先执行 ollama pull <model>")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Model"})
	for i, m := range models {
		t.AppendRow(table.Row{i + 1, m})
	}
	t.Render()

	fmt.Printf("\n当前默认模型: %s\n", cfg.Ollama.Model)
	return nil
}
