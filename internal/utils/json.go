package utils

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ExtractJSONContent очищает ответ LLM от markdown-оберток (```json ... ```).
// Модели периодически оборачивают JSON в кодовый блок даже в json-режиме.
func ExtractJSONContent(raw string) string {
	cleaned := strings.TrimSpace(raw)

	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	if strings.HasPrefix(cleaned, "```") {
		firstNewline := strings.Index(cleaned, "\n")
		if firstNewline != -1 {
			cleaned = strings.TrimSpace(cleaned[firstNewline+1:])
		} else {
			// ```json{} без переноса строки: срезаем обертку, возможный
			// остаток языка свалится на парсинге JSON, это приемлемо
			cleaned = strings.TrimPrefix(cleaned, "```")
			cleaned = strings.TrimSpace(cleaned)
		}
	}

	return cleaned
}

// DecodeStrict декодирует JSON-данные в out, запрещая неизвестные поля.
func DecodeStrict(data []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
