// Package sl содержит вспомогательные функции для работы с логгером slog:
// создание логгера под окружение и формирование типовых полей лога.
package sl

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// SetupLogger создаёт логгер под окружение: текстовый для local,
// JSON для dev и prod. В prod отладочные сообщения отключены.
func SetupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	return log
}

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
//
// Пример:
//
//	log.Error("failed to do something", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// SubID возвращает атрибут с идентификатором подписки.
func SubID(id uuid.UUID) slog.Attr {
	return slog.String("subscription_id", id.String())
}
