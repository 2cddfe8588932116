package utils

import (
	"fmt"
	"os"
	"strings"
)

// ReadSecret читает секрет из файла в стандартном пути Docker Secrets.
// Fallback на переменные окружения не делаем, чтобы поведение было консистентным.
func ReadSecret(secretName string) (string, error) {
	filePath := fmt.Sprintf("/run/secrets/%s", secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// ReadSecretOrEnv сначала пробует файл секрета, затем переменную окружения.
// Используется в dev-окружении, где Docker Secrets недоступны.
func ReadSecretOrEnv(secretName, envName string) (string, error) {
	if secret, err := ReadSecret(secretName); err == nil {
		return secret, nil
	}
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret %s not found in file or env %s", secretName, envName)
}
