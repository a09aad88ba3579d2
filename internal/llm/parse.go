package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// StripJSONFences убирает markdown-ограждения ```json ... ``` вокруг ответа
// модели, если они есть.
func StripJSONFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// ParseJSONArray разбирает JSON-массив из текста ответа модели в v.
// Повреждённый JSON сначала пытаемся починить через jsonrepair и только
// потом отказываемся.
func ParseJSONArray(text string, v any) error {
	const op = "llm.ParseJSONArray"
	cleaned := StripJSONFences(text)

	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
