package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rajivgeraev/skillswap-api/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "migratectl",
		Short: "Миграция документов SkillSwap в новый формат",
		Long: `migratectl переводит обмены, беседы и сообщения в новый формат
напрямую через хранилище, без HTTP API сервиса миграции.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.ValidateCmd())
	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.TokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
