package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// keygen.go - генерация и хеширование credential копи-пары
//
// Credential выдается паре при создании и прошивается в master EA.
// В БД он не хранится в открытом виде: рядом лежат AES-шифртекст
// (для показа владельцу) и SHA-256 (для поиска при приеме сигнала).

// CredentialPrefix - префикс ключей пар, позволяет отличать их
// в логах и при ручной диагностике.
const CredentialPrefix = "ctk_"

// credentialBytes - число случайных байт в ключе (32 hex-символа)
const credentialBytes = 16

// GenerateCredential генерирует новый credential пары.
//
// Формат: ctk_<32 hex>. Источник - crypto/rand.
func GenerateCredential() (string, error) {
	buf := make([]byte, credentialBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate credential: %w", err)
	}
	return CredentialPrefix + hex.EncodeToString(buf), nil
}

// HashCredential возвращает hex SHA-256 ключа для lookup-колонки.
//
// SHA-256 здесь уместнее bcrypt: ключ высокоэнтропийный (не пароль
// пользователя), а поиск по детерминированному хешу должен быть
// индексируемым.
func HashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}
