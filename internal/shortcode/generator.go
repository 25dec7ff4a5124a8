package shortcode

import (
	"crypto/rand"
	"math/big"
)

const (
	// DefaultLength даёт 62^6 комбинаций; уникальность всё равно проверяется по базе
	DefaultLength = 6
	alphabet      = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generate возвращает случайный короткий код. Генератор не гарантирует
// уникальность: вызывающий обязан проверить коллизию перед записью.
func Generate() (string, error) {
	return GenerateWithLength(DefaultLength)
}

func GenerateWithLength(length int) (string, error) {
	code := make([]byte, length)
	alphabetLen := big.NewInt(int64(len(alphabet)))

	for i := range code {
		randomIndex, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		code[i] = alphabet[randomIndex.Int64()]
	}

	return string(code), nil
}
