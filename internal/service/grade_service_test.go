package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

type mockGradeClassRepo struct {
	classes  map[string]*models.ClassModel
	students []models.User
}

func (m *mockGradeClassRepo) FindByID(ctx context.Context, id string) (*models.ClassModel, error) {
	if c, ok := m.classes[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeClassRepo) ListMembers(ctx context.Context, classID string, role models.ClassMemberRole) ([]models.User, error) {
	return m.students, nil
}

type mockGradePracticeRepo struct {
	practices []models.Practice
	updated   []models.PracticePercentage
}

func (m *mockGradePracticeRepo) ListByClass(ctx context.Context, classID string) ([]models.Practice, error) {
	return m.practices, nil
}

func (m *mockGradePracticeRepo) UpdatePercentages(ctx context.Context, entries []models.PracticePercentage) error {
	m.updated = entries
	return nil
}

type mockGradeSimulationRepo struct {
	// keyed by practiceID + "/" + studentID
	sims map[string][]models.Simulation
}

func (m *mockGradeSimulationRepo) ListForStudentAndPractice(ctx context.Context, practiceID, studentID string) ([]models.Simulation, error) {
	return m.sims[practiceID+"/"+studentID], nil
}

func registeredSim(id string, grade float64, gradedAt time.Time) models.Simulation {
	return models.Simulation{
		ID:            id,
		GradeStatus:   models.GradeRegistered,
		Grade:         &grade,
		GradeDateTime: &gradedAt,
	}
}

func newGradeFixture() (*mockGradeClassRepo, *mockGradePracticeRepo, *mockGradeSimulationRepo) {
	classes := &mockGradeClassRepo{
		classes: map[string]*models.ClassModel{
			"class-1": {ID: "class-1", JaverianaID: "1501", Period: "2026-1"},
		},
		students: []models.User{
			{ID: "stu-1", Name: "Laura", LastName: "Gomez", InstitutionalID: "000123"},
		},
	}
	practices := &mockGradePracticeRepo{
		practices: []models.Practice{
			{ID: "prac-1", Name: "Triage", Gradeable: true, GradePercentage: 60, ClassID: "class-1"},
			{ID: "prac-2", Name: "CPR", Gradeable: true, GradePercentage: 40, ClassID: "class-1"},
			{ID: "prac-3", Name: "Orientation", Gradeable: false, ClassID: "class-1"},
		},
	}
	sims := &mockGradeSimulationRepo{sims: make(map[string][]models.Simulation)}
	return classes, practices, sims
}

func TestFinalGradesWeightedAverage(t *testing.T) {
	classes, practices, sims := newGradeFixture()
	gradedAt := time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)
	sims.sims["prac-1/stu-1"] = []models.Simulation{registeredSim("sim-1", 4.0, gradedAt)}
	sims.sims["prac-2/stu-1"] = []models.Simulation{registeredSim("sim-2", 3.0, gradedAt)}

	svc := NewGradeService(classes, practices, sims, nil, nil)
	report, err := svc.FinalGradesByClass(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.InDelta(t, 3.6, report[0].FinalGrade, 0.0001)
	assert.Len(t, report[0].Breakdown, 2, "non-gradeable practices stay out of the report")
}

func TestFinalGradesIgnorePendingPractices(t *testing.T) {
	classes, practices, sims := newGradeFixture()
	gradedAt := time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)
	sims.sims["prac-1/stu-1"] = []models.Simulation{registeredSim("sim-1", 4.0, gradedAt)}
	// prac-2 has a simulation but the grade was never published
	sims.sims["prac-2/stu-1"] = []models.Simulation{{ID: "sim-2", GradeStatus: models.GradePending}}

	svc := NewGradeService(classes, practices, sims, nil, nil)
	report, err := svc.FinalGradesByClass(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, report, 1)
	// only the 60% practice counts: 4.0*60/60
	assert.InDelta(t, 4.0, report[0].FinalGrade, 0.0001)
	assert.False(t, report[0].Breakdown[1].Registered)
}

func TestFinalGradesPreferLatestPublished(t *testing.T) {
	classes, practices, sims := newGradeFixture()
	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
	sims.sims["prac-1/stu-1"] = []models.Simulation{
		registeredSim("sim-1", 2.0, early),
		registeredSim("sim-2", 4.5, late),
	}
	sims.sims["prac-2/stu-1"] = []models.Simulation{registeredSim("sim-3", 3.0, early)}

	svc := NewGradeService(classes, practices, sims, nil, nil)
	report, err := svc.FinalGradesByClass(context.Background(), "class-1")
	require.NoError(t, err)
	require.NotNil(t, report[0].Breakdown[0].Grade)
	assert.Equal(t, 4.5, *report[0].Breakdown[0].Grade)
}

func TestUpdatePercentagesMustSumToHundred(t *testing.T) {
	classes, practices, sims := newGradeFixture()
	svc := NewGradeService(classes, practices, sims, nil, nil)

	err := svc.UpdateClassPercentages(context.Background(), "class-1", UpdatePercentagesRequest{
		Percentages: []models.PracticePercentage{
			{PracticeID: "prac-1", Percentage: 50},
			{PracticeID: "prac-2", Percentage: 40},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidPercentages.Code, appErrors.FromError(err).Code)
	assert.Empty(t, practices.updated)
}

func TestUpdatePercentagesRejectsNonGradeable(t *testing.T) {
	classes, practices, sims := newGradeFixture()
	svc := NewGradeService(classes, practices, sims, nil, nil)

	err := svc.UpdateClassPercentages(context.Background(), "class-1", UpdatePercentagesRequest{
		Percentages: []models.PracticePercentage{
			{PracticeID: "prac-3", Percentage: 100},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdatePercentagesRejectsDuplicates(t *testing.T) {
	classes, practices, sims := newGradeFixture()
	svc := NewGradeService(classes, practices, sims, nil, nil)

	err := svc.UpdateClassPercentages(context.Background(), "class-1", UpdatePercentagesRequest{
		Percentages: []models.PracticePercentage{
			{PracticeID: "prac-1", Percentage: 50},
			{PracticeID: "prac-1", Percentage: 50},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdatePercentagesPersists(t *testing.T) {
	classes, practices, sims := newGradeFixture()
	svc := NewGradeService(classes, practices, sims, nil, nil)

	entries := []models.PracticePercentage{
		{PracticeID: "prac-1", Percentage: 70},
		{PracticeID: "prac-2", Percentage: 30},
	}
	err := svc.UpdateClassPercentages(context.Background(), "class-1", UpdatePercentagesRequest{Percentages: entries})
	require.NoError(t, err)
	assert.Equal(t, entries, practices.updated)
}

func TestExportFinalGradesCSV(t *testing.T) {
	classes, practices, sims := newGradeFixture()
	gradedAt := time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)
	sims.sims["prac-1/stu-1"] = []models.Simulation{registeredSim("sim-1", 4.0, gradedAt)}

	svc := NewGradeService(classes, practices, sims, nil, nil)
	out, err := svc.ExportFinalGradesCSV(context.Background(), "class-1")
	require.NoError(t, err)

	csv := string(out)
	assert.Contains(t, csv, "Institutional ID")
	assert.Contains(t, csv, "Triage (60%)")
	assert.Contains(t, csv, "000123")
	assert.Contains(t, csv, "Laura Gomez")
	// CPR has no published grade, exported as a dash
	line := csv[strings.Index(csv, "000123"):]
	assert.Contains(t, line, "-")
}

func TestExportFinalGradesPDF(t *testing.T) {
	classes, practices, sims := newGradeFixture()
	svc := NewGradeService(classes, practices, sims, nil, nil)

	out, err := svc.ExportFinalGradesPDF(context.Background(), "class-1")
	require.NoError(t, err)
	assert.True(t, len(out) > 0)
	assert.Equal(t, "%PDF", string(out[:4]))
}
