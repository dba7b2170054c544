package cli

import (
	"os"

	"github.com/epubtrans/epubtrans/internal/config"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewLanguagesCommand 创建 languages 命令，列出常用语言代码
func NewLanguagesCommand() *cobra.Command {
	languagesCmd := &cobra.Command{
		Use:   "languages",
		Short: "列出常用语言代码",
		Long:  `列出 --from / --to 常用的语言代码。其余 BCP 47 代码同样可用。`,
		Run:   runLanguagesCommand,
	}
	return languagesCmd
}

func runLanguagesCommand(_ *cobra.Command, _ []string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Code", "Language"})
	for _, lang := range config.CommonLanguages() {
		t.AppendRow(table.Row{lang[0], lang[1]})
	}
	t.Render()
}
