package utils

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost      = 12
	MinSecretLength = 12
)

// HashSecret bcrypt-hashes a client secret.
func HashSecret(secret string) (string, error) {
	return hashSecret(secret, BcryptCost)
}

func hashSecret(secret string, cost int) (string, error) {
	if len(secret) < MinSecretLength {
		return "", fmt.Errorf("secret must be at least %d characters long", MinSecretLength)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func CheckSecret(hashedSecret string, secret string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret))
	return err == nil
}
