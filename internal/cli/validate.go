package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ValidateCmd проверяет готовность коллекций и сервисов совместимости
func ValidateCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "validate [collection...]",
		Short: "Проверить предварительные условия миграции",
		Long: `Проверяет доступность хранилища, реестр сервисов и наличие коллекций.
Без аргументов проверяет trades, conversations и messages.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, verbose)
			if err != nil {
				return err
			}
			defer e.close()

			out := cmd.OutOrStdout()
			ok := true

			report := e.registry.ValidateServices(ctx)
			fmt.Fprintf(out, "Сервисы совместимости:\n")
			fmt.Fprintf(out, "  %s trades\n", mark(report.Trades))
			fmt.Fprintf(out, "  %s chat\n", mark(report.Chat))
			for _, msg := range report.Errors {
				fmt.Fprintf(out, "    %s\n", msg)
			}
			ok = ok && report.Healthy()

			if len(args) == 0 {
				args = []string{"trades", "conversations", "messages"}
			}
			fmt.Fprintf(out, "\nКоллекции:\n")
			for _, collection := range args {
				pre := e.engine.CheckPrerequisites(ctx, collection)
				fmt.Fprintf(out, "  %s %s\n", mark(pre.OK()), collection)
				for _, msg := range pre.Errors {
					fmt.Fprintf(out, "    %s\n", msg)
				}
				ok = ok && pre.OK()
			}

			if !ok {
				return fmt.Errorf("проверка не пройдена")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Подробный лог")
	return cmd
}
