package reservation

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codePrefix brands confirmation codes so staff recognize them on sight.
const codePrefix = "BM"

// GenerateCode returns a short, phone-friendly confirmation code like
// "BM-4821". Four digits keeps it readable over a bad connection; the
// allocation engine retries on the rare collision.
func GenerateCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		// crypto/rand only fails when the platform's entropy source is
		// broken; there is no useful recovery at this level.
		panic(fmt.Sprintf("reading random source: %v", err))
	}
	return fmt.Sprintf("%s-%04d", codePrefix, n.Int64())
}
