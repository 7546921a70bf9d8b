// Package creds hashes and verifies user passwords. bcrypt embeds a random
// per-hash salt, so two users with the same password get different hashes.
package creds

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const hashCost = 14

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// DummyHash returns a hash to compare against when a username does not
// exist, so a login attempt costs one bcrypt comparison either way.
func DummyHash() string {
	dummyOnce.Do(func() {
		dummyHash, _ = HashPassword("safehaven-timing-dummy")
	})
	return dummyHash
}
