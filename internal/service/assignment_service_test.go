package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/credential-service/internal/config"
	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/events"
	"github.com/spec-kit/credential-service/internal/repository/memory"
	"github.com/spec-kit/credential-service/internal/service"
	apperrors "github.com/spec-kit/credential-service/pkg/util/errorutil"
)

func TestCreateAssignment(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		a := f.newAssignment(t, 1)
		assert.Regexp(t, `^es_[0-9a-f]{32}$`, a.ID)
		assert.Equal(t, "12345678900", a.StaffCPF)
		assert.Nil(t, a.RegistrationCheckID)

		_, err := f.assignments.CreateAssignment(ctx, service.AssignmentCreateInput{
			EventID: 100, StaffID: 1, StaffCPF: "12345678900", CreatedBy: operator,
		})
		require.Error(t, err)
		assert.Equal(t, 409, apperrors.ToDomainError(err).HTTPStatus)

		_, err = f.assignments.CreateAssignment(ctx, service.AssignmentCreateInput{
			EventID: 100, StaffID: 2, StaffCPF: "--", CreatedBy: operator,
		})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

		got, err := f.assignments.GetAssignment(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)

		_, err = f.assignments.GetAssignment(ctx, "es_nope")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeAssignmentNotFound))
	})
}

func TestListAssignmentsFilters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.newAssignment(t, 1)
		f.newAssignment(t, 2)
		_, err := f.assignments.CreateAssignment(ctx, service.AssignmentCreateInput{
			EventID: 200, StaffID: 1, StaffCPF: "98765432100", CreatedBy: operator,
		})
		require.NoError(t, err)

		all, err := f.assignments.ListAssignments(ctx, service.AssignmentListFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		eventID := int64(100)
		byEvent, err := f.assignments.ListAssignments(ctx, service.AssignmentListFilter{EventID: &eventID})
		require.NoError(t, err)
		assert.Len(t, byEvent, 2)

		cpf := "987.654.321-00"
		byCPF, err := f.assignments.ListAssignments(ctx, service.AssignmentListFilter{StaffCPF: &cpf})
		require.NoError(t, err)
		require.Len(t, byCPF, 1)
		assert.Equal(t, int64(200), byCPF[0].EventID)

		page, err := f.assignments.ListAssignments(ctx, service.AssignmentListFilter{Limit: 1, Offset: 2})
		require.NoError(t, err)
		assert.Len(t, page, 1)
	})
}

type recordingPublisher struct {
	channel  string
	messages [][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.messages = append(p.messages, message.([]byte))
	return redis.NewIntResult(1, nil)
}

func TestNotificationServiceBroadcastsLedgerEvents(t *testing.T) {
	store := memory.New()
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	publisher := &recordingPublisher{}
	service.NewNotificationService(dispatcher, publisher, zap.NewNop(), config.NotificationConfig{Channel: "venue.presence"}).
		RegisterHandlers()

	assignments := service.NewAssignmentService(service.AssignmentDependencies{AssignmentRepo: store.Assignments(), Dispatcher: dispatcher})
	ledger := service.NewCheckLedger(service.CheckLedgerDependencies{
		AssignmentRepo: store.Assignments(),
		CheckRepo:      store.Checks(),
		Dispatcher:     dispatcher,
	})

	ctx := context.Background()
	a, err := assignments.CreateAssignment(ctx, service.AssignmentCreateInput{EventID: 1, StaffID: 1, StaffCPF: "11122233344", CreatedBy: operator})
	require.NoError(t, err)
	_, err = ledger.RecordAction(ctx, service.RecordActionInput{AssignmentID: a.ID, Action: domain.CheckActionRegistration, UserControlID: operator})
	require.NoError(t, err)

	assert.Equal(t, "venue.presence", publisher.channel)
	require.Len(t, publisher.messages, 2)

	var recorded struct {
		Type          string `json:"type"`
		EventsStaffID string `json:"events_staff_id"`
		Payload       struct {
			Action  string `json:"action"`
			ToState string `json:"to_state"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(publisher.messages[1], &recorded))
	assert.Equal(t, string(events.EventCheckRecorded), recorded.Type)
	assert.Equal(t, a.ID, recorded.EventsStaffID)
	assert.Equal(t, "registration", recorded.Payload.Action)
	assert.Equal(t, "REGISTERED_OUT", recorded.Payload.ToState)
}
