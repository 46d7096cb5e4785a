package warehouse

import (
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/snowlink-io/snowlink-engine/pkg/apperrors"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// ValidateMutation is the shared safety gate every backend runs before
// interpolating anything into DDL. Identifier violations and injection
// patterns in the comment text are rejected, not retried.
func ValidateMutation(m *models.TargetMutation) error {
	if err := m.Entity.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrApplyRejected, err)
	}

	if isSQLi, fingerprint := libinjection.IsSQLi(m.NewValue); isSQLi {
		return fmt.Errorf("%w: injection pattern %s in comment for %s",
			apperrors.ErrApplyRejected, string(fingerprint), m.Entity)
	}
	return nil
}

// QuoteLiteral renders a string as a SQL literal with quotes doubled.
// Only used for values that already passed ValidateMutation.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
