package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rajivgeraev/skillswap-api/internal/config"
	"github.com/rajivgeraev/skillswap-api/internal/utils"
)

// TokenCmd выпускает JWT оператора для API и потока прогресса
func TokenCmd() *cobra.Command {
	var (
		operatorID string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Выпустить токен оператора",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("не задан JWT_SECRET")
			}

			if operatorID == "" {
				operatorID = uuid.NewString()
			} else if _, err := uuid.Parse(operatorID); err != nil {
				return fmt.Errorf("идентификатор оператора должен быть UUID: %w", err)
			}

			token, err := utils.NewJWTService(cfg.JWTSecret).GenerateToken(operatorID, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Оператор %s, действует %s\n", operatorID, ttl)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&operatorID, "operator", "", "UUID оператора, по умолчанию новый")
	cmd.Flags().DurationVar(&ttl, "ttl", utils.DefaultTokenTTL, "Время жизни токена")
	return cmd
}
