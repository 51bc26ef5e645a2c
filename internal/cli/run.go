package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rajivgeraev/skillswap-api/internal/migration"
)

// RunCmd запускает миграцию коллекции и печатает итог
func RunCmd() *cobra.Command {
	var (
		verbose        bool
		transformName  string
		batchSize      int
		concurrency    int
		rateLimit      time.Duration
		maxRetries     int
		errorThreshold float64
		minSample      int
		zeroDowntime   bool
		dryRun         bool
		noRollback     bool
		operator       string
	)

	cmd := &cobra.Command{
		Use:   "run <collection>",
		Short: "Перевести коллекцию в новый формат",
		Long: `Переводит документы коллекции в новый формат пакетами.
Ctrl+C плавно останавливает запуск: пакеты в работе завершаются, новые не начинаются.
Значения по умолчанию берутся из переменных MIGRATION_*.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := args[0]
			name := transformName
			if name == "" {
				name = collection
			}
			transform, err := migration.TransformFor(name)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := connect(ctx, verbose)
			if err != nil {
				return err
			}
			defer e.close()

			opts := migration.OptionsFromConfig(e.cfg.MigrationConfig)
			flags := cmd.Flags()
			if flags.Changed("batch-size") {
				opts.BatchSize = batchSize
			}
			if flags.Changed("concurrency") {
				opts.MaxConcurrentBatches = concurrency
			}
			if flags.Changed("rate-limit") {
				opts.RateLimit = rateLimit
			}
			if flags.Changed("max-retries") {
				opts.MaxRetries = maxRetries
			}
			if flags.Changed("error-threshold") {
				opts.ErrorThreshold = errorThreshold
			}
			if flags.Changed("min-sample") {
				opts.MinSampleSize = minSample
			}
			if flags.Changed("zero-downtime") {
				opts.EnableZeroDowntime = zeroDowntime
			}
			opts.DryRun = dryRun
			opts.DisableRollback = noRollback
			opts.Operator = operator

			out := cmd.OutOrStdout()
			events, cancel := e.engine.Subscribe(64)
			defer cancel()
			go printProgress(out, events)

			result, err := e.engine.ExecuteMigration(ctx, collection, transform, opts)
			if err != nil {
				return err
			}
			printResult(out, result)
			return result.Err()
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&verbose, "verbose", "v", false, "Подробный лог")
	f.StringVar(&transformName, "transform", "", "Преобразование (trades, conversations, messages), по умолчанию по имени коллекции")
	f.IntVar(&batchSize, "batch-size", 0, "Документов в пакете")
	f.IntVar(&concurrency, "concurrency", 0, "Пакетов одновременно")
	f.DurationVar(&rateLimit, "rate-limit", 0, "Пауза между пакетами, 0 без ограничения")
	f.IntVar(&maxRetries, "max-retries", 0, "Повторов на документ и запись")
	f.Float64Var(&errorThreshold, "error-threshold", 0, "Доля ошибок для аварийной остановки")
	f.IntVar(&minSample, "min-sample", 0, "Документов до первой проверки доли ошибок")
	f.BoolVar(&zeroDowntime, "zero-downtime", false, "Проверять здоровье сервисов перед каждым пакетом")
	f.BoolVar(&dryRun, "dry-run", false, "Преобразовать без записи")
	f.BoolVar(&noRollback, "no-rollback", false, "Не откатывать при сбое записи")
	f.StringVar(&operator, "operator", os.Getenv("USER"), "Оператор для журнала")
	return cmd
}

func printProgress(out io.Writer, events <-chan migration.Event) {
	for ev := range events {
		switch ev.Type {
		case migration.EventBatchCompleted:
			fmt.Fprintf(out, "  пакет %d: %d/%d, ошибок %d (%.1f%%)\n",
				ev.Batch, ev.Processed, ev.Total, ev.Failed, ev.ErrorRate*100)
		case migration.EventHealthPause:
			fmt.Fprintf(out, "  %s пауза: %s\n", warnMark, ev.Message)
		case migration.EventStopRequested:
			fmt.Fprintf(out, "  %s остановка: %s\n", warnMark, ev.Message)
		}
	}
}

// printResult печатает итог запуска
func printResult(out io.Writer, r *migration.Result) {
	state := color.New(color.FgGreen).Sprint(r.State)
	switch r.State {
	case migration.StateEmergencyStopped, migration.StateRolledBack:
		state = color.New(color.FgRed).Sprint(r.State)
	case migration.StateGracefullyStopped:
		state = color.New(color.FgYellow).Sprint(r.State)
	}

	fmt.Fprintf(out, "\nМиграция %s [%s] %s\n", r.Collection, r.RunID, state)
	if r.DryRun {
		fmt.Fprintf(out, "  %s пробный запуск, данные не изменены\n", warnMark)
	}
	fmt.Fprintf(out, "  Всего:        %d\n", r.TotalDocuments)
	fmt.Fprintf(out, "  Обработано:   %d\n", r.TotalProcessed)
	fmt.Fprintf(out, "  Успешно:      %d\n", r.Succeeded)
	fmt.Fprintf(out, "  Пропущено:    %d\n", r.Skipped)
	fmt.Fprintf(out, "  Ошибок:       %d (%.2f%%)\n", r.Failed, r.ErrorRate*100)
	fmt.Fprintf(out, "  Осталось:     %d\n", r.Remaining)
	fmt.Fprintf(out, "  Пакетов:      %d\n", r.BatchesProcessed)
	fmt.Fprintf(out, "  Время:        %s (%.1f док/с)\n",
		r.PerformanceMetrics.Duration.Round(time.Millisecond), r.PerformanceMetrics.DocumentsPerSecond)

	if r.EmergencyStopTriggered {
		fmt.Fprintf(out, "  %s аварийная остановка: %s\n", failMark, r.EmergencyStopReason)
	}
	if r.RollbackExecuted {
		fmt.Fprintf(out, "  %s выполнен откат, целостность: %s\n", warnMark, mark(r.DataIntegrityPreserved))
	}

	const maxShown = 10
	for i, de := range r.Errors {
		if i == maxShown {
			fmt.Fprintf(out, "  ... и еще %d\n", len(r.Errors)-maxShown)
			break
		}
		fmt.Fprintf(out, "  %s %s: %s\n", failMark, de.DocumentID, de.Message)
	}
}
