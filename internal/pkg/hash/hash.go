package hash

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// cost is the single bcrypt cost factor used for every credential secret.
// Raising it only affects newly issued credentials; outstanding hashes keep
// the cost they were created with.
const cost = bcrypt.DefaultCost

// Secret hashes a plaintext sign-in secret with bcrypt.
func Secret(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}

// Matches reports whether plain is the preimage of hash. Comparison is done
// by bcrypt itself; never compare hashes byte-wise by hand.
func Matches(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
