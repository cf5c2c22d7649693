// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/moe-roll/rollreturn/internal/domain/registry"
	"github.com/moe-roll/rollreturn/internal/domain/roll"
	"github.com/moe-roll/rollreturn/internal/domain/shared"
	"github.com/moe-roll/rollreturn/internal/infrastructure/moefile"
	"github.com/moe-roll/rollreturn/pkg/logger"
	"github.com/moe-roll/rollreturn/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE ROLL RETURN COMMAND
// Aggregates a school's students for one collection and writes the next
// version of its .moe file.
// ══════════════════════════════════════════════════════════════════════════════

// Metadata describes the school and submission.
type Metadata struct {
	// SchoolNumber is the ministry-issued school number.
	SchoolNumber string `validate:"required,numeric,max=6"`

	// SMSName and SMSVersion identify the student management system.
	SMSName    string `validate:"required"`
	SMSVersion string `validate:"required"`

	// MonthCode is one of M, E, J, S.
	MonthCode string `validate:"required,monthcode"`

	// Year is limited to 2000-2099 so the two-digit file tag is unique.
	Year int `validate:"gte=2000,lte=2099"`

	// EnrolmentScheme is true when the school operates an enrolment scheme.
	EnrolmentScheme bool

	// EnrolmentSchemeDate is when the scheme took effect, nil when unknown.
	EnrolmentSchemeDate *time.Time

	// Draft selects the DRAFT version sequence.
	Draft bool

	// Approver is the name of the authorising user written to the footer.
	Approver string `validate:"required"`
}

// GenerateRollReturnCommand contains the data needed to generate a file.
type GenerateRollReturnCommand struct {
	Metadata Metadata
	Students []roll.Student
}

// GenerateRollReturnResult contains the result of a generation.
type GenerateRollReturnResult struct {
	// RunID identifies this generation in logs and audit entries.
	RunID string

	Scope   registry.Scope
	Version int
	Path    string

	// Digest is the hex BLAKE2b-256 of the file.
	Digest string

	// RollTotal is the header roll total as written.
	RollTotal string

	StudentCount int

	GeneratedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// FileOpener opens the next version of a scope's file.
type FileOpener interface {
	Open(ctx context.Context, scope registry.Scope) (*moefile.File, error)
}

// VersionCompleter marks a version complete once its file is committed.
type VersionCompleter interface {
	CompleteVersion(ctx context.Context, scope registry.Scope, version int, digest string) error
}

// AuditSink receives one free-text action per generated file.
type AuditSink interface {
	Record(ctx context.Context, action string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GenerateRollReturnHandler handles the GenerateRollReturnCommand.
type GenerateRollReturnHandler struct {
	aggregator *roll.Aggregator
	files      FileOpener
	versions   VersionCompleter
	audit      AuditSink
	validate   *validator.Validate
	now        func() time.Time
	logger     *logger.Logger
}

// GenerateRollReturnHandlerConfig contains the handler's collaborators.
type GenerateRollReturnHandlerConfig struct {
	Rules    roll.RuleSet
	Files    FileOpener
	Versions VersionCompleter
	Audit    AuditSink

	// Now overrides the clock used for the footer. Defaults to timeutil.Now.
	Now    func() time.Time
	Logger *logger.Logger
}

// NewGenerateRollReturnHandler creates a new handler.
func NewGenerateRollReturnHandler(cfg GenerateRollReturnHandlerConfig) *GenerateRollReturnHandler {
	if cfg.Now == nil {
		cfg.Now = timeutil.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &GenerateRollReturnHandler{
		aggregator: roll.NewAggregator(cfg.Rules),
		files:      cfg.Files,
		versions:   cfg.Versions,
		audit:      cfg.Audit,
		validate:   newMetadataValidator(),
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
}

const monthCodeTag = "monthcode"

func newMetadataValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := registerMonthCode(v, monthCodeTag); err != nil {
		panic("command: " + err.Error())
	}
	return v
}

func registerMonthCode(v *validator.Validate, tag string) error {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return roll.MonthCode(fl.Field().String()).IsValid()
	})
	if err != nil {
		return fmt.Errorf("register %q validation: %w", tag, err)
	}
	return nil
}

// Validate checks the metadata. Every failure is a configuration error and
// is raised before any I/O.
func (h *GenerateRollReturnHandler) Validate(m Metadata) error {
	err := h.validate.Struct(m)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.WrapError("command", "GenerateRollReturn", shared.ErrConfiguration, "invalid metadata", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return shared.Configuration("command", "GenerateRollReturn", "invalid metadata: %s", strings.Join(msgs, "; "))
}

// Handle executes the command.
func (h *GenerateRollReturnHandler) Handle(ctx context.Context, cmd GenerateRollReturnCommand) (*GenerateRollReturnResult, error) {
	started := time.Now()
	runID := uuid.NewString()
	meta := cmd.Metadata

	log := h.logger.WithRunID(runID).With(
		logger.School(meta.SchoolNumber),
		logger.Month(meta.MonthCode),
		logger.Year(meta.Year),
	)

	// Step 1: Validate metadata
	if err := h.Validate(meta); err != nil {
		return nil, err
	}
	period, err := roll.NewPeriod(meta.MonthCode, meta.Year)
	if err != nil {
		return nil, err
	}
	scope, err := registry.NewScope(meta.SchoolNumber, period, meta.Draft)
	if err != nil {
		return nil, err
	}

	// Step 2: Aggregate before touching the registry or the disk
	categories, err := h.aggregator.Categories(period, cmd.Students)
	if err != nil {
		log.Warn("aggregation rejected batch", logger.Err(err))
		return nil, err
	}
	maori, err := h.aggregator.Maori(period, cmd.Students)
	if err != nil {
		log.Warn("aggregation rejected batch", logger.Err(err))
		return nil, err
	}
	rollTotal := roll.FormatAmount(categories.Total)

	// Step 3: Obtain a version-pinned file
	f, err := h.files.Open(ctx, scope)
	if err != nil {
		log.Error("open versioned file failed", logger.Err(err))
		return nil, err
	}
	log = log.With(logger.Version(f.Version()), logger.Path(f.Path()))

	// Step 4: Emit records and commit
	generatedAt := h.now()
	if err := h.writeFile(f, meta, period, rollTotal, cmd.Students, categories, maori, generatedAt); err != nil {
		if abortErr := f.Abort(); abortErr != nil {
			log.Error("abort versioned file failed", logger.Err(abortErr))
		}
		log.Error("write roll return failed", logger.Err(err))
		return nil, err
	}

	result := &GenerateRollReturnResult{
		RunID:        runID,
		Scope:        scope,
		Version:      f.Version(),
		Path:         f.Path(),
		Digest:       f.Digest(),
		RollTotal:    rollTotal,
		StudentCount: len(cmd.Students),
		GeneratedAt:  generatedAt,
	}

	// Step 5: Bookkeeping. The file is final, so failures here are logged only.
	if err := h.versions.CompleteVersion(ctx, scope, result.Version, result.Digest); err != nil {
		log.Error("mark version complete failed", logger.Err(err))
	}
	if h.audit != nil {
		action := fmt.Sprintf("Generated MOE file %s version %d for school %s (%s, roll %s)",
			registry.FileTag(scope), result.Version, scope.SchoolNumber, scope.Mode(), rollTotal)
		if err := h.audit.Record(ctx, action); err != nil {
			log.Warn("audit record failed", logger.Err(err))
		}
	}

	log.Info("roll return generated",
		logger.String("roll_total", rollTotal),
		logger.Int("students", result.StudentCount),
		logger.Latency(time.Since(started)),
	)
	return result, nil
}

func (h *GenerateRollReturnHandler) writeFile(
	f *moefile.File,
	meta Metadata,
	period roll.Period,
	rollTotal string,
	students []roll.Student,
	categories *roll.CategoryTable,
	maori *roll.MaoriTable,
	at time.Time,
) error {
	header := moefile.Header{
		SMSName:             meta.SMSName,
		SMSVersion:          meta.SMSVersion,
		Period:              period,
		SchoolNumber:        meta.SchoolNumber,
		RollTotal:           rollTotal,
		EnrolmentScheme:     meta.EnrolmentScheme,
		EnrolmentSchemeDate: meta.EnrolmentSchemeDate,
	}
	if err := f.WriteLine(header.Cells()...); err != nil {
		return err
	}

	columns := moefile.StudentColumns()
	for _, s := range students {
		if err := f.WriteLine(moefile.StudentLine(columns, s)...); err != nil {
			return err
		}
	}

	if err := f.WriteLine(moefile.Footer(len(students), meta.Approver, at)...); err != nil {
		return err
	}

	for _, line := range moefile.CategoryLines(period, categories) {
		if err := f.WriteLine(line...); err != nil {
			return err
		}
	}
	for _, line := range moefile.MaoriLines(maori) {
		if err := f.WriteLine(line...); err != nil {
			return err
		}
	}

	return f.Commit()
}
