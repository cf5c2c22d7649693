// Package registry defines the version registry contract for roll return
// files and the version assignment protocol built on top of it.
//
// A scope is (school, period, mode). Each scope owns an independent,
// gap-free version sequence starting at 1. Storage backends live in
// infrastructure/persistence; this package only states what they must
// guarantee.
package registry

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/moe-roll/rollreturn/internal/domain/roll"
	"github.com/moe-roll/rollreturn/internal/domain/shared"
)

// Mode separates draft versions from official submissions.
type Mode string

const (
	ModeDraft    Mode = "DRAFT"
	ModeOfficial Mode = "OFFICIAL"
)

// ModeOf maps a draft flag to its mode.
func ModeOf(draft bool) Mode {
	if draft {
		return ModeDraft
	}
	return ModeOfficial
}

var schoolNumberRegex = regexp.MustCompile(`^[0-9]{1,6}$`)

// Scope is the unit of versioning.
type Scope struct {
	SchoolNumber string
	Period       roll.Period
	Draft        bool
}

// NewScope validates and builds a Scope.
func NewScope(schoolNumber string, period roll.Period, draft bool) (Scope, error) {
	s := Scope{SchoolNumber: schoolNumber, Period: period, Draft: draft}
	if err := s.Validate(); err != nil {
		return Scope{}, err
	}
	return s, nil
}

// Validate checks that the scope can name a file.
func (s Scope) Validate() error {
	if !schoolNumberRegex.MatchString(s.SchoolNumber) {
		return shared.Configuration("registry", "Scope", "school number %q must be 1-6 digits", s.SchoolNumber)
	}
	if !s.Period.Month.IsValid() {
		return shared.Configuration("registry", "Scope", "unknown collection month code %q", string(s.Period.Month))
	}
	if !roll.YearInRange(s.Period.Year) {
		return shared.Configuration("registry", "Scope", "collection year %d outside %d-%d", s.Period.Year, roll.MinYear, roll.MaxYear)
	}
	return nil
}

// Mode returns DRAFT or OFFICIAL.
func (s Scope) Mode() Mode {
	return ModeOf(s.Draft)
}

// Key returns a stable string identity for the scope, used for lock names
// and cache keys: "<school>:<month>:<year>:<mode>".
func (s Scope) Key() string {
	return fmt.Sprintf("%s:%s:%d:%s", s.SchoolNumber, s.Period.Month, s.Period.Year, s.Mode())
}

func (s Scope) String() string {
	return s.Key()
}

// ══════════════════════════════════════════════════════════════════════════════
// PATH DERIVATION
// Version assignment and final path resolution both go through these
// functions, so the two can never disagree.
// ══════════════════════════════════════════════════════════════════════════════

// FileExtension of roll return files.
const FileExtension = ".moe"

// FileTag returns [DRAFT]<school><month><yy>, e.g. "DRAFT123M15".
func FileTag(s Scope) string {
	prefix := ""
	if s.Draft {
		prefix = string(ModeDraft)
	}
	return prefix + s.SchoolNumber + string(s.Period.Month) + s.Period.ShortYear()
}

// VersionDir returns baseDir/<tag>/v<version>.
func VersionDir(baseDir string, s Scope, version int) string {
	return filepath.Join(baseDir, FileTag(s), "v"+strconv.Itoa(version))
}

// Path returns baseDir/<tag>/v<version>/<tag>.moe.
func Path(baseDir string, s Scope, version int) string {
	return filepath.Join(VersionDir(baseDir, s, version), FileTag(s)+FileExtension)
}
