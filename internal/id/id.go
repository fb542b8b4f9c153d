package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// mu guards mono; ulid.Monotonic readers are not safe for concurrent use.
var (
	mu   sync.Mutex
	mono io.Reader
)

// init seeds the monotonic entropy source from crypto/rand, falling back to
// the clock when the read yields nothing.
func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string. IDs made in the same millisecond still increase,
// so rows from one process sort in creation order by primary key.
// It panics if the entropy source overflows.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// AccountNumber returns prefix + "-" + 12 upper-case hex digits taken from
// the random tail of a UUIDv7, e.g. "BT-8F03A91C5D1E". The leading digits of
// a v7 UUID are the millisecond timestamp and would collide within a burst.
func AccountNumber(prefix string) (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("id: uuid v7: %w", err)
	}
	hex := strings.ReplaceAll(u.String(), "-", "")
	return prefix + "-" + strings.ToUpper(hex[len(hex)-12:]), nil
}
