package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sfxc-dev/attendance-api/internal/models"
	appErrors "github.com/sfxc-dev/attendance-api/pkg/errors"
)

type mockStudentRepo struct {
	students    map[string]*models.Student
	taken       map[string]bool
	bulkErr     error
	bulkBatches [][]models.Student
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{students: make(map[string]*models.Student), taken: map[string]bool{}}
}

func (m *mockStudentRepo) List(_ context.Context, _ models.StudentFilter) ([]models.Student, int, error) {
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(_ context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsBy(_ context.Context, column, value, _ string) (bool, error) {
	return m.taken[column+":"+value], nil
}

func (m *mockStudentRepo) Create(_ context.Context, student *models.Student) error {
	m.students[student.ID] = student
	return nil
}

func (m *mockStudentRepo) BulkInsert(_ context.Context, students []models.Student) error {
	if m.bulkErr != nil {
		return m.bulkErr
	}
	m.bulkBatches = append(m.bulkBatches, students)
	for i := range students {
		s := students[i]
		m.students[s.ID] = &s
	}
	return nil
}

func (m *mockStudentRepo) Update(_ context.Context, student *models.Student) error {
	m.students[student.ID] = student
	return nil
}

func (m *mockStudentRepo) Delete(_ context.Context, id string) error {
	delete(m.students, id)
	return nil
}

func validStudentRequest() StudentRequest {
	return StudentRequest{
		StudentID: "2021-00001",
		RFIDUID:   "0123456789",
		FirstName: "Juan",
		LastName:  "Dela Cruz",
		Email:     "Juan.DelaCruz@example.edu",
		YearLevel: 2,
	}
}

func TestStudentCreateNormalisesEmail(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, nil, 10, zap.NewNop())

	student, err := svc.Create(context.Background(), validStudentRequest())
	require.NoError(t, err)
	assert.Equal(t, "juan.delacruz@example.edu", student.Email)
	assert.False(t, student.MiddleName.Valid)
}

func TestStudentCreateRejectsTakenRFID(t *testing.T) {
	repo := newMockStudentRepo()
	repo.taken["rfid_uid:0123456789"] = true
	svc := NewStudentService(repo, nil, 10, zap.NewNop())

	_, err := svc.Create(context.Background(), validStudentRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 409, appErr.Status)
	assert.Contains(t, appErr.Message, "rfid_uid")
}

func TestStudentCreateRejectsYearLevelOutOfRange(t *testing.T) {
	svc := NewStudentService(newMockStudentRepo(), nil, 10, zap.NewNop())

	req := validStudentRequest()
	req.YearLevel = 6
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)

	req.YearLevel = 0
	_, err = svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
}

func TestStudentCreateRejectsWrongRFIDLength(t *testing.T) {
	svc := NewStudentService(newMockStudentRepo(), nil, 10, zap.NewNop())

	req := validStudentRequest()
	req.RFIDUID = "123"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
}

const rosterCSV = `student_id,rfid_uid,first_name,middle_name,last_name,email,year_level
2021-00001,0123456789,Juan,Santos,Dela Cruz,juan@example.edu,1
2021-00002,9876543210,Maria,,Reyes,maria@example.edu,2
`

func TestImportInsertsAllRowsAtomically(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, nil, 10, zap.NewNop())

	result, err := svc.Import(context.Background(), strings.NewReader(rosterCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	require.Len(t, repo.bulkBatches, 1)
	assert.Len(t, repo.bulkBatches[0], 2)
}

func TestImportRejectsBadHeader(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, nil, 10, zap.NewNop())

	csv := "name,card\nJuan,0123456789\n"
	_, err := svc.Import(context.Background(), strings.NewReader(csv))
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
	assert.Empty(t, repo.bulkBatches)
}

func TestImportRejectsRepeatedRFIDWithLineNumbers(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, nil, 10, zap.NewNop())

	csv := `student_id,rfid_uid,first_name,middle_name,last_name,email,year_level
2021-00001,0123456789,Juan,,Dela Cruz,juan@example.edu,1
2021-00002,0123456789,Maria,,Reyes,maria@example.edu,2
`
	_, err := svc.Import(context.Background(), strings.NewReader(csv))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 400, appErr.Status)
	assert.Contains(t, appErr.Message, "line 3")
	assert.Empty(t, repo.bulkBatches)
}

func TestImportRejectsInvalidRowAndNothingApplies(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, nil, 10, zap.NewNop())

	csv := `student_id,rfid_uid,first_name,middle_name,last_name,email,year_level
2021-00001,0123456789,Juan,,Dela Cruz,juan@example.edu,1
2021-00002,123,Maria,,Reyes,maria@example.edu,2
`
	_, err := svc.Import(context.Background(), strings.NewReader(csv))
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "line 3")
	assert.Empty(t, repo.students)
}

func TestImportRejectsEmptyFile(t *testing.T) {
	svc := NewStudentService(newMockStudentRepo(), nil, 10, zap.NewNop())

	_, err := svc.Import(context.Background(), strings.NewReader(""))
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
}

func TestTemplateCarriesRosterHeader(t *testing.T) {
	svc := NewStudentService(newMockStudentRepo(), nil, 10, zap.NewNop())

	file, err := svc.Template()
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Payload), "student_id,rfid_uid,first_name,middle_name,last_name,email,year_level"))
}
