package lease

import (
	"fmt"
	"time"
)

// NewID returns a 4-hex-digit lease id: the low 16 bits of the unix
// millisecond clock XOR the low 16 bits of the worker index.
//
// Ids are not checked for uniqueness. Items leased by one worker within the
// same millisecond share an id, and ids of different workers can collide.
func NewID(now time.Time, workerID int) string {
	return fmt.Sprintf("%04x", uint16(now.UnixMilli())^uint16(workerID))
}
