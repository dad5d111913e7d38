package common

import (
	"fmt"
	"math"
	"time"
)

// CooldownError reports that a token-issuing request arrived before the
// per-principal cooldown elapsed. It matches ErrCooldown with errors.Is.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: retry in %ds", ErrCooldown.Error(), e.SecondsRemaining())
}

// Is makes errors.Is(err, ErrCooldown) hold for any *CooldownError.
func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldown
}

// SecondsRemaining rounds the remaining wait up to whole seconds, so a pending
// cooldown never reports zero.
func (e *CooldownError) SecondsRemaining() int64 {
	if e.Remaining <= 0 {
		return 0
	}
	return int64(math.Ceil(e.Remaining.Seconds()))
}
