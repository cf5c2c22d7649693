package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moe-roll/rollreturn/internal/domain/roll"
	"github.com/moe-roll/rollreturn/internal/domain/shared"
	"github.com/moe-roll/rollreturn/internal/infrastructure/audit"
	"github.com/moe-roll/rollreturn/internal/infrastructure/moefile"
	"github.com/moe-roll/rollreturn/internal/infrastructure/persistence/sqlite"
	"github.com/moe-roll/rollreturn/pkg/timeutil"
)

type fixture struct {
	handler *GenerateRollReturnHandler
	store   *sqlite.Store
	baseDir string
	actions []string
}

func newFixture(t *testing.T, auditErr error) *fixture {
	t.Helper()
	dir := t.TempDir()
	baseDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(baseDir, 0o755))

	store, err := sqlite.Open(filepath.Join(dir, "registry.db"), sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	writer, err := moefile.NewWriter(baseDir, store)
	require.NoError(t, err)

	f := &fixture{store: store, baseDir: baseDir}
	f.handler = NewGenerateRollReturnHandler(GenerateRollReturnHandlerConfig{
		Rules:    roll.DefaultRuleSet(),
		Files:    writer,
		Versions: store,
		Audit: audit.SinkFunc(func(_ context.Context, action string) error {
			f.actions = append(f.actions, action)
			return auditErr
		}),
		Now: func() time.Time { return timeutil.Date(2015, time.March, 2).Add(9*time.Hour + 30*time.Minute) },
	})
	return f
}

func testMetadata() Metadata {
	return Metadata{
		SchoolNumber: "123",
		SMSName:      "TestSMS",
		SMSVersion:   "1.0",
		MonthCode:    "M",
		Year:         2015,
		Draft:        true,
		Approver:     "Jane Doe",
	}
}

func seventeenYearOld() roll.Student {
	return roll.Student{
		Type:             roll.TypeRegular,
		StartDate:        timeutil.Date(2015, time.February, 2),
		DateOfBirth:      timeutil.Date(1997, time.May, 20),
		Gender:           roll.GenderFemale,
		FundingYearLevel: 12,
		FTE:              decimal.NewFromInt(1),
		Fields:           map[string]string{"SURNAME": `O"Neil, Jr`},
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	require.True(t, strings.HasSuffix(content, "\r\n"))
	return strings.Split(strings.TrimSuffix(content, "\r\n"), "\r\n")
}

func TestGenerate_SingleStudentScenario(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.handler.Handle(context.Background(), GenerateRollReturnCommand{
		Metadata: testMetadata(),
		Students: []roll.Student{seventeenYearOld()},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Version)
	assert.Equal(t, "1", res.RollTotal)
	assert.Equal(t, filepath.Join(f.baseDir, "DRAFT123M15", "v1", "DRAFT123M15.moe"), res.Path)
	assert.NotEmpty(t, res.RunID)

	lines := readLines(t, res.Path)
	require.Len(t, lines, 1+1+1+7+6)

	assert.Equal(t, "TestSMS,1.0,M,2015,123,1,N,00000000", lines[0])

	student := moefile.DecodeLine(lines[1])
	require.Len(t, student, moefile.StudentColumnCount)
	assert.Equal(t, `O"Neil, Jr`, student[1])

	assert.Equal(t, "Footer,1,20150302,0930,Jane Doe,20150302,0930", lines[2])

	fr := moefile.DecodeLine(lines[3])
	assert.Equal(t, "M3FR", fr[0])
	assert.Equal(t, "1", fr[2*12], "female year 12")
	assert.Equal(t, "0", fr[2*12-1], "male year 12")

	assert.Equal(t, "MLL1", moefile.DecodeLine(lines[10])[0])

	recs, err := f.store.ListVersions(context.Background(), res.Scope)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].IsComplete())
	assert.Equal(t, res.Digest, recs[0].Digest)

	require.Len(t, f.actions, 1)
	assert.Contains(t, f.actions[0], "DRAFT123M15 version 1")
}

func TestGenerate_VersionsIncrease(t *testing.T) {
	f := newFixture(t, nil)
	cmd := GenerateRollReturnCommand{Metadata: testMetadata(), Students: []roll.Student{seventeenYearOld()}}

	for want := 1; want <= 3; want++ {
		res, err := f.handler.Handle(context.Background(), cmd)
		require.NoError(t, err)
		assert.Equal(t, want, res.Version)
	}

	official := cmd
	official.Metadata.Draft = false
	res, err := f.handler.Handle(context.Background(), official)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Version)
	assert.Equal(t, filepath.Join(f.baseDir, "123M15", "v1", "123M15.moe"), res.Path)
}

func TestGenerate_AuditFailureDoesNotFail(t *testing.T) {
	f := newFixture(t, errors.New("audit store down"))

	res, err := f.handler.Handle(context.Background(), GenerateRollReturnCommand{
		Metadata: testMetadata(),
		Students: []roll.Student{seventeenYearOld()},
	})
	require.NoError(t, err)
	assert.FileExists(t, res.Path)
}

func TestGenerate_FailuresBeforeIO(t *testing.T) {
	badMonth := testMetadata()
	badMonth.MonthCode = "X"

	noApprover := testMetadata()
	noApprover.Approver = ""

	lastCentury := testMetadata()
	lastCentury.Year = 1915

	badStudent := seventeenYearOld()
	badStudent.Gender = "U"

	tests := []struct {
		name     string
		meta     Metadata
		students []roll.Student
		check    func(error) bool
	}{
		{"unknown month", badMonth, nil, shared.IsConfiguration},
		{"missing approver", noApprover, nil, shared.IsConfiguration},
		{"year outside tag century", lastCentury, nil, shared.IsConfiguration},
		{"invalid student", testMetadata(), []roll.Student{seventeenYearOld(), badStudent}, shared.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.handler.Handle(context.Background(), GenerateRollReturnCommand{Metadata: tt.meta, Students: tt.students})
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())

			entries, err := os.ReadDir(f.baseDir)
			require.NoError(t, err)
			assert.Empty(t, entries, "nothing may be written")
			assert.Empty(t, f.actions)
		})
	}
}

func TestMetadataValidator_MonthCode(t *testing.T) {
	v := newMetadataValidator()

	m := testMetadata()
	assert.NoError(t, v.Struct(m))

	m.MonthCode = "X"
	assert.Error(t, v.Struct(m))
}

func TestRegisterMonthCode_ReportsFailure(t *testing.T) {
	err := registerMonthCode(validator.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register")
}

func TestGenerate_FractionalFTE(t *testing.T) {
	f := newFixture(t, nil)
	a, b := seventeenYearOld(), seventeenYearOld()
	a.FTE = decimal.RequireFromString("0.8")
	b.FTE = decimal.RequireFromString("0.3")

	res, err := f.handler.Handle(context.Background(), GenerateRollReturnCommand{
		Metadata: testMetadata(),
		Students: []roll.Student{a, b},
	})
	require.NoError(t, err)
	assert.Equal(t, "1.1", res.RollTotal)

	lines := readLines(t, res.Path)
	pr := moefile.DecodeLine(lines[5])
	assert.Equal(t, "M3PR", pr[0])
	assert.Equal(t, "1.1", pr[2*12])
}
