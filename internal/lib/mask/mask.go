// Package mask содержит чистые функции маскировки контактных данных
// для превью: название компании, адрес почты и обрезка текста.
// Функции детерминированы и не имеют побочных эффектов: один и тот же
// вход всегда даёт один и тот же результат.
package mask

import "strings"

// CompanyName маскирует название компании: при длине до трёх символов
// заменяется всё, иначе остаются видны первый и последний символы.
func CompanyName(name string) string {
	runes := []rune(name)
	if len(runes) <= 3 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-1])
}

// Email маскирует адрес почты: локальная часть и первая метка домена
// скрываются по той же схеме, что и название компании, остальные метки
// домена (TLD, поддомены после первой метки) остаются как есть.
//
// Пустая строка или адрес без "@" возвращаются без изменений — это
// документированное деградированное поведение, а не ошибка.
func Email(email string) string {
	if !strings.Contains(email, "@") {
		return email
	}
	local, domain, _ := strings.Cut(email, "@")

	maskedLocal := maskPart(local)

	domainParts := strings.Split(domain, ".")
	maskedDomain := domain
	if len(domainParts) >= 2 {
		maskedDomain = maskPart(domainParts[0]) + "." + strings.Join(domainParts[1:], ".")
	}
	return maskedLocal + "@" + maskedDomain
}

// maskPart скрывает внутренность фрагмента, оставляя первый и последний
// символы видимыми только для фрагментов длиннее двух символов.
func maskPart(part string) string {
	runes := []rune(part)
	if len(runes) <= 2 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-1])
}

// BlurText оставляет первые maxWords слов текста; если слов было больше,
// в конец добавляется многоточие.
func BlurText(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
