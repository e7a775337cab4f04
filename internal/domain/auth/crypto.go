package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashPassword 生成带盐口令哈希，格式为 salt$digest
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	salt, err := generateHex(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt + "$" + digest(salt, password), nil
}

// VerifyPassword 校验口令与存储哈希是否匹配
func VerifyPassword(password, encoded string) bool {
	parts := strings.SplitN(encoded, "$", 2)
	if len(parts) != 2 {
		return false
	}
	expected := digest(parts[0], password)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(parts[1])) == 1
}

func digest(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}

func generateHex(byteLen int) (string, error) {
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
