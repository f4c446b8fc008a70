package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// hash.go - bcrypt-хеширование админского ключа
//
// Админские endpoints (управление парами, очистка очередей и истории)
// защищены одним ключом оператора; в конфигурации хранится только его
// bcrypt-хеш (ADMIN_KEY_HASH), сам ключ сервер не видит никогда.

// Ошибки хеширования
var (
	ErrEmptyKey     = errors.New("key cannot be empty")
	ErrKeyMismatch  = errors.New("key does not match hash")
	ErrInvalidHash  = errors.New("invalid key hash format")
	ErrKeyTooLong   = errors.New("key exceeds maximum length of 72 bytes")
)

// DefaultCost - стоимость хеширования по умолчанию
const DefaultCost = 12

// maxKeyLength - предел bcrypt (72 байта)
const maxKeyLength = 72

// HashKey хеширует ключ с использованием bcrypt.
// Используется оператором при генерации ADMIN_KEY_HASH.
func HashKey(key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	if len(key) > maxKeyLength {
		return "", ErrKeyTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// VerifyKey проверяет соответствие ключа хешу.
// Сравнение выполняется за константное время.
func VerifyKey(key, hash string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrKeyMismatch
		}
		return ErrInvalidHash
	}

	return nil
}

// CheckKeyMatch проверяет соответствие ключа хешу и возвращает bool
func CheckKeyMatch(key, hash string) bool {
	return VerifyKey(key, hash) == nil
}
