package helper

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

var (
	entropyMutex sync.Mutex
	entropy      = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// GenerateHash creates the opaque registration hash the name service
// hands out. ULIDs are unique enough within a run and sort by issue
// time, which makes registration logs easy to follow.
func GenerateHash() string {
	entropyMutex.Lock()
	defer entropyMutex.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
