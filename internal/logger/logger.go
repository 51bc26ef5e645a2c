package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger общий логгер процесса. До вызова Setup пишет JSON в stderr.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// New создает логгер, пишущий в w с указанным уровнем
func New(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// Setup настраивает общий логгер под окружение приложения.
// В development используется читаемый консольный вывод.
func Setup(appEnv, level string) zerolog.Logger {
	var w io.Writer = os.Stderr
	if appEnv == "development" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	Logger = New(w, level)
	return Logger
}

// ParseLevel переводит строковый уровень в zerolog.Level, по умолчанию info
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
