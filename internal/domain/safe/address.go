package safe

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ParseAddress accepts only "0x" followed by 40 hex digits. Checksum case is
// not enforced.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !addressPattern.MatchString(s) {
		return common.Address{}, fmt.Errorf("%w: %q", domainerrors.ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}
