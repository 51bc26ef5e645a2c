package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// StatusCmd показывает состояние реестра и последние запуски из журнала
func StatusCmd() *cobra.Command {
	var (
		verbose bool
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Показать состояние сервисов и историю миграций",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, verbose)
			if err != nil {
				return err
			}
			defer e.close()

			out := cmd.OutOrStdout()
			st := e.registry.Status()
			fmt.Fprintf(out, "Хранилище:        %s\n", e.cfg.StoreDriver)
			fmt.Fprintf(out, "Реестр:           %s\n", mark(st.Initialized))
			fmt.Fprintf(out, "Двойной формат:   %v\n", st.MigrationMode)

			report := e.registry.ValidateServices(ctx)
			fmt.Fprintf(out, "Сервисы:          trades %s  chat %s\n", mark(report.Trades), mark(report.Chat))

			if e.history == nil {
				fmt.Fprintf(out, "\n%s журнал не настроен (AUDIT_MYSQL_DSN)\n", warnMark)
				return nil
			}

			runs, err := e.history.Runs(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nПоследние запуски:\n")
			if len(runs) == 0 {
				fmt.Fprintf(out, "  (нет)\n")
			}
			for _, r := range runs {
				fmt.Fprintf(out, "  %s  %-14s %-18s обработано %d, ошибок %d, осталось %d\n",
					r.StartedAt.Local().Format(time.DateTime), r.Collection, r.State,
					r.TotalProcessed, r.Failed, r.Remaining)
				if r.Reason != "" {
					fmt.Fprintf(out, "    %s\n", r.Reason)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Подробный лог")
	cmd.Flags().IntVar(&limit, "limit", 10, "Сколько запусков показать")
	return cmd
}
