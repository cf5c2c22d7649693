package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/moe-roll/rollreturn/internal/application/command"
	"github.com/moe-roll/rollreturn/internal/domain/roll"
	"github.com/moe-roll/rollreturn/internal/domain/shared"
	"github.com/moe-roll/rollreturn/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER - DTO to command transformations
// ══════════════════════════════════════════════════════════════════════════════

// DecodeRequest reads one RequestDTO. Unknown keys are rejected.
func DecodeRequest(r io.Reader) (*RequestDTO, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var req RequestDTO
	if err := dec.Decode(&req); err != nil {
		return nil, shared.WrapError("cli", "DecodeRequest", shared.ErrValidation, "malformed request", err)
	}
	return &req, nil
}

// CommandFromDTO converts a request into a generation command. Malformed
// dates are reported with the student's position.
func CommandFromDTO(req *RequestDTO) (command.GenerateRollReturnCommand, error) {
	meta, err := metadataFromDTO(req.Meta)
	if err != nil {
		return command.GenerateRollReturnCommand{}, err
	}

	students := make([]roll.Student, 0, len(req.Students))
	for i, dto := range req.Students {
		s, err := studentFromDTO(i, dto)
		if err != nil {
			return command.GenerateRollReturnCommand{}, err
		}
		students = append(students, s)
	}

	return command.GenerateRollReturnCommand{Metadata: meta, Students: students}, nil
}

func metadataFromDTO(dto MetaDTO) (command.Metadata, error) {
	meta := command.Metadata{
		SchoolNumber:    strings.TrimSpace(dto.SchoolNumber),
		SMSName:         dto.SMSName,
		SMSVersion:      dto.SMSVersion,
		MonthCode:       strings.ToUpper(strings.TrimSpace(dto.Month)),
		Year:            dto.Year,
		EnrolmentScheme: dto.EnrolmentScheme,
		Draft:           dto.Draft,
		Approver:        dto.Approver,
	}
	if dto.EnrolmentSchemeDate != "" {
		d, err := timeutil.ParseDate(dto.EnrolmentSchemeDate)
		if err != nil {
			return command.Metadata{}, shared.Configuration("cli", "CommandFromDTO",
				"enrolment scheme date %q: %v", dto.EnrolmentSchemeDate, err)
		}
		meta.EnrolmentSchemeDate = &d
	}
	return meta, nil
}

func studentFromDTO(index int, dto StudentDTO) (roll.Student, error) {
	s := roll.Student{
		Type:               strings.ToUpper(strings.TrimSpace(dto.Type)),
		Gender:             roll.Gender(strings.ToUpper(strings.TrimSpace(dto.Gender))),
		FundingYearLevel:   dto.FundingYearLevel,
		FTE:                dto.FTE.Decimal,
		STP:                strings.TrimSpace(dto.STP),
		MaoriLanguageLevel: strings.TrimSpace(dto.Maori),
		Ethnicity:          dto.Ethnicity,
		Fields:             dto.Fields,
	}

	var err error
	if s.StartDate, err = optionalDate(index, "start_date", dto.StartDate); err != nil {
		return roll.Student{}, err
	}
	if s.DateOfBirth, err = optionalDate(index, "dob", dto.DateOfBirth); err != nil {
		return roll.Student{}, err
	}
	if dto.EndDate != "" {
		end, err := optionalDate(index, "end_date", dto.EndDate)
		if err != nil {
			return roll.Student{}, err
		}
		s.EndDate = &end
	}
	if !dto.FTE.Valid {
		return roll.Student{}, shared.Validation("cli", "CommandFromDTO", "student %d: missing fte", index)
	}
	return s, nil
}

// optionalDate parses a date, leaving the zero time for an empty value so
// the aggregator reports missing fields only when they are needed.
func optionalDate(index int, field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := timeutil.ParseDate(value)
	if err != nil {
		return time.Time{}, shared.Validation("cli", "CommandFromDTO", "student %d: %s %q: %v", index, field, value, err)
	}
	return t, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESENTATION
// ══════════════════════════════════════════════════════════════════════════════

// GenerateOutput is printed after a successful generation.
type GenerateOutput struct {
	RunID        string `json:"run_id"`
	FileTag      string `json:"file_tag"`
	Version      int    `json:"version"`
	Path         string `json:"path"`
	Digest       string `json:"digest"`
	RollTotal    string `json:"roll_total"`
	StudentCount int    `json:"student_count"`
	GeneratedAt  string `json:"generated_at"`
}

// OutputFromResult maps a generation result for printing.
func OutputFromResult(fileTag string, res *command.GenerateRollReturnResult) GenerateOutput {
	return GenerateOutput{
		RunID:        res.RunID,
		FileTag:      fileTag,
		Version:      res.Version,
		Path:         res.Path,
		Digest:       res.Digest,
		RollTotal:    res.RollTotal,
		StudentCount: res.StudentCount,
		GeneratedAt:  timeutil.ToReporting(res.GeneratedAt).Format(time.RFC3339),
	}
}

// WriteJSON prints v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
