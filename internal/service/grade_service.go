package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
	"github.com/clinsim/simlab-api/pkg/export"
)

type gradeClassRepo interface {
	FindByID(ctx context.Context, id string) (*models.ClassModel, error)
	ListMembers(ctx context.Context, classID string, role models.ClassMemberRole) ([]models.User, error)
}

type gradePracticeRepo interface {
	ListByClass(ctx context.Context, classID string) ([]models.Practice, error)
	UpdatePercentages(ctx context.Context, entries []models.PracticePercentage) error
}

type gradeSimulationRepo interface {
	ListForStudentAndPractice(ctx context.Context, practiceID, studentID string) ([]models.Simulation, error)
}

// UpdatePercentagesRequest redistributes grade weights across the gradeable
// practices of a class.
type UpdatePercentagesRequest struct {
	Percentages []models.PracticePercentage `json:"percentages" validate:"required,min=1,dive"`
}

// GradeService computes weighted final grades per class and exports grade
// reports.
type GradeService struct {
	classes     gradeClassRepo
	practices   gradePracticeRepo
	simulations gradeSimulationRepo
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(classes gradeClassRepo, practices gradePracticeRepo, simulations gradeSimulationRepo, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		classes:     classes,
		practices:   practices,
		simulations: simulations,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		validator:   validate,
		logger:      logger,
	}
}

// UpdateClassPercentages rewrites the grade weights of a class. The entries
// must cover gradeable practices of the class and sum to exactly 100; the
// check runs here, not in the client.
func (s *GradeService) UpdateClassPercentages(ctx context.Context, classID string, req UpdatePercentagesRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid percentages payload")
	}

	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	practices, err := s.practices.ListByClass(ctx, classID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class practices")
	}
	gradeable := make(map[string]bool, len(practices))
	for _, p := range practices {
		if p.Gradeable {
			gradeable[p.ID] = true
		}
	}

	var sum float64
	seen := make(map[string]bool, len(req.Percentages))
	for _, entry := range req.Percentages {
		if !gradeable[entry.PracticeID] {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("practice %s is not a gradeable practice of this class", entry.PracticeID))
		}
		if seen[entry.PracticeID] {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("practice %s appears more than once", entry.PracticeID))
		}
		seen[entry.PracticeID] = true
		sum += entry.Percentage
	}
	if math.Abs(sum-100) > 0.001 {
		return appErrors.Clone(appErrors.ErrInvalidPercentages,
			fmt.Sprintf("grade percentages must sum to 100, got %.2f", sum))
	}

	if err := s.practices.UpdatePercentages(ctx, req.Percentages); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade percentages")
	}
	s.logger.Info("class grade percentages updated", zap.String("class_id", classID))
	return nil
}

// FinalGradesByClass computes the weighted final grade of every student in
// the class. Only practices whose grade is REGISTERED count: the final
// grade is sum(grade * pct) / sum(pct) over registered practices, so
// pending practices neither help nor hurt.
func (s *GradeService) FinalGradesByClass(ctx context.Context, classID string) ([]models.StudentFinalGrade, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	students, err := s.classes.ListMembers(ctx, classID, models.ClassMemberStudent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class students")
	}

	practices, err := s.practices.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class practices")
	}
	var gradeable []models.Practice
	for _, p := range practices {
		if p.Gradeable {
			gradeable = append(gradeable, p)
		}
	}

	report := make([]models.StudentFinalGrade, 0, len(students))
	for _, student := range students {
		entry := models.StudentFinalGrade{
			StudentID:   student.ID,
			StudentName: student.Name + " " + student.LastName,
		}

		var weightedSum, weightSum float64
		for _, practice := range gradeable {
			row := models.GradeBreakdownEntry{
				PracticeID:   practice.ID,
				PracticeName: practice.Name,
				Percentage:   practice.GradePercentage,
			}
			grade, ok, err := s.registeredGrade(ctx, practice.ID, student.ID)
			if err != nil {
				return nil, err
			}
			if ok {
				row.Grade = &grade
				row.Registered = true
				weightedSum += grade * practice.GradePercentage
				weightSum += practice.GradePercentage
			}
			entry.Breakdown = append(entry.Breakdown, row)
		}

		if weightSum > 0 {
			entry.FinalGrade = weightedSum / weightSum
		}
		report = append(report, entry)
	}

	return report, nil
}

// ExportFinalGradesCSV renders the class grade report as CSV.
func (s *GradeService) ExportFinalGradesCSV(ctx context.Context, classID string) ([]byte, error) {
	dataset, _, err := s.gradeDataset(ctx, classID)
	if err != nil {
		return nil, err
	}
	out, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render grade csv")
	}
	return out, nil
}

// ExportFinalGradesPDF renders the class grade report as PDF.
func (s *GradeService) ExportFinalGradesPDF(ctx context.Context, classID string) ([]byte, error) {
	dataset, class, err := s.gradeDataset(ctx, classID)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("Final grades - %s", class.Period)
	out, err := s.pdf.Render(dataset, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render grade pdf")
	}
	return out, nil
}

func (s *GradeService) gradeDataset(ctx context.Context, classID string) (export.Dataset, *models.ClassModel, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return export.Dataset{}, nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return export.Dataset{}, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	report, err := s.FinalGradesByClass(ctx, classID)
	if err != nil {
		return export.Dataset{}, nil, err
	}

	headers := []string{"Institutional ID", "Student"}
	if len(report) > 0 {
		for _, row := range report[0].Breakdown {
			headers = append(headers, fmt.Sprintf("%s (%.0f%%)", row.PracticeName, row.Percentage))
		}
	}
	headers = append(headers, "Final Grade")

	students, err := s.classes.ListMembers(ctx, classID, models.ClassMemberStudent)
	if err != nil {
		return export.Dataset{}, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class students")
	}
	institutional := make(map[string]string, len(students))
	for _, student := range students {
		institutional[student.ID] = student.InstitutionalID
	}

	dataset := export.Dataset{Headers: headers}
	for _, entry := range report {
		row := map[string]string{
			"Institutional ID": institutional[entry.StudentID],
			"Student":          entry.StudentName,
			"Final Grade":      strconv.FormatFloat(entry.FinalGrade, 'f', 2, 64),
		}
		for i, breakdown := range entry.Breakdown {
			value := "-"
			if breakdown.Registered && breakdown.Grade != nil {
				value = strconv.FormatFloat(*breakdown.Grade, 'f', 2, 64)
			}
			row[headers[2+i]] = value
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	return dataset, class, nil
}

// registeredGrade finds the published grade of a student for a practice,
// preferring the most recently graded simulation.
func (s *GradeService) registeredGrade(ctx context.Context, practiceID, studentID string) (float64, bool, error) {
	sims, err := s.simulations.ListForStudentAndPractice(ctx, practiceID, studentID)
	if err != nil {
		return 0, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student simulations")
	}

	var (
		found bool
		best  models.Simulation
	)
	for _, sim := range sims {
		if sim.GradeStatus != models.GradeRegistered || sim.Grade == nil {
			continue
		}
		if !found || (sim.GradeDateTime != nil && best.GradeDateTime != nil && sim.GradeDateTime.After(*best.GradeDateTime)) {
			best = sim
			found = true
		}
	}
	if !found {
		return 0, false, nil
	}
	return *best.Grade, true, nil
}
