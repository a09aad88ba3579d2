// Package sl содержит вспомогательные функции для работы с логгером slog:
// единообразное формирование структурированных полей об ошибках и
// внешних провайдерах.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и текстом ошибки.
//
// Пример:
//
//	log.Error("failed to reveal match", sl.Err(err))
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Provider возвращает slog.Attr с именем внешнего провайдера (stripe, llm),
// чтобы деградации внешних вызовов можно было фильтровать в логах.
func Provider(name string) slog.Attr {
	return slog.Attr{
		Key:   "provider",
		Value: slog.StringValue(name),
	}
}
