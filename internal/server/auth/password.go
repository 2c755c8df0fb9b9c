package auth

import "golang.org/x/crypto/bcrypt"

// PasswordCost is the bcrypt work factor.
const PasswordCost = 10

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// dummyHash is compared against when the account does not exist, so that
// unknown emails cost about as much as wrong passwords.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("serialboxd-dummy-password"), PasswordCost)

// BurnPasswordCheck runs a comparison against a fixed hash and discards the
// result.
func BurnPasswordCheck(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
