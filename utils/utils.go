package utils

import (
	"os"
	"strings"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
)

const (
	maxDisplayNameLen = 32
	BotIDPrefix       = "bot-"
	BotDisplayName    = "Bot"
)

// NewID returns a random id, optionally prefixed ("game-", "tournament-", ...).
func NewID(prefix string) string {
	return prefix + uuid.New().String()
}

// DisplayName обрезает пробелы в имени; пустое имя заменяется сгенерированным.
func DisplayName(requested string) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		return petname.Generate(2, "-")
	}
	if len([]rune(name)) > maxDisplayNameLen {
		name = string([]rune(name)[:maxDisplayNameLen])
	}
	return name
}

func IsBotID(id string) bool {
	return strings.HasPrefix(id, BotIDPrefix)
}

func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
