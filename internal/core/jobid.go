package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const jobIDSuffixLength = 9

// NewJobID returns an identifier of the form print_<epoch-millis>_<suffix>.
func NewJobID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:jobIDSuffixLength]
	return fmt.Sprintf("print_%d_%s", now.UnixMilli(), suffix)
}
