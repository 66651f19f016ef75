package licence

import "time"

// ValidityWindow is the fixed licence lifetime, assigned once at issuance.
const ValidityWindow = 30 * 24 * time.Hour

// Licence is the sole persisted entity. Code is immutable and globally
// unique; HWID is set exactly once by activation; Expiry is fixed at
// issuance and never extended or shortened; Activated transitions to
// true at most once and never reverts.
type Licence struct {
	Code        string     `json:"licence_code"`
	HWID        string     `json:"hwid,omitempty"`
	IssuedAt    time.Time  `json:"issued_at"`
	Expiry      time.Time  `json:"expiry"`
	Activated   bool       `json:"activated"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

// Bound reports whether the licence has been bound to a machine.
// Activated implies a non-empty HWID; Store implementations must
// preserve that invariant.
func (l *Licence) Bound() bool {
	return l.Activated && l.HWID != ""
}

// ExpiredAt reports whether the licence is past its validity window at
// the given instant. A licence is still valid at exactly Expiry.
func (l *Licence) ExpiredAt(now time.Time) bool {
	return now.After(l.Expiry)
}
