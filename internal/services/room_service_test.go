package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-core/internal/apperr"
	"chat-core/internal/mocks"
	"chat-core/internal/models"
	"chat-core/internal/pagination"
	"chat-core/internal/repositories"
	"chat-core/internal/services"
)

func TestListForUserBatchesUnreadCounts(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	unread := new(mocks.UnreadCounterMock)
	users := new(mocks.UserDirectoryMock)
	svc := services.NewRoomService(rooms, unread, users, services.NewRolePolicy(nil), &mocks.RecordingNotifier{}, nil)

	now := time.Now().UTC()
	name := "Eng"
	rows := []models.Room{
		{ID: 3, Kind: models.RoomGroup, Name: &name, OwnerID: 1, State: models.LifecycleActive, LastModifiedAt: now, ParticipantIDs: []int64{1, 2, 3}},
		{ID: 2, Kind: models.RoomDirect, OwnerID: 2, State: models.LifecycleRestored, LastModifiedAt: now.Add(-time.Second), ParticipantIDs: []int64{2, 1},
			LastMessage: &models.Message{ID: 7, SenderID: 2, Content: "secret", State: models.LifecycleDeleted}},
		{ID: 1, Kind: models.RoomGroup, Name: &name, OwnerID: 1, State: models.LifecycleActive, LastModifiedAt: now.Add(-2 * time.Second), ParticipantIDs: []int64{1, 2, 3}},
	}
	rooms.On("ListRoomsForUser", mock.Anything, int64(1), "", pagination.Query{Limit: 2}).Return(rows, nil).Once()
	unread.On("UnreadCounts", mock.Anything, int64(1), []int64{3, 2}).Return(map[int64]int{2: 4}, nil).Once()
	users.On("BulkUsers", mock.Anything, []int64{1, 2, 3}).Return([]models.UserSummary{
		{ID: 1, FirstName: "Ada"},
		{ID: 2, FirstName: "Grace", LastName: "Hopper"},
	}, nil).Once()

	page, err := svc.ListForUser(context.Background(), models.CurrentUser{ID: 1}, "", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Results, 2)
	require.NotNil(t, page.Next)

	after, err := pagination.Decode(*page.Next)
	require.NoError(t, err)
	assert.Equal(t, int64(2), after.ID)

	direct := page.Results[1]
	assert.Equal(t, "Grace Hopper", direct.Name)
	assert.Equal(t, 4, direct.UnreadMessagesCount)
	assert.True(t, direct.IsRestored)
	require.NotNil(t, direct.LastMessage)
	assert.Equal(t, models.DeletedMessagePlaceholder, direct.LastMessage.Content)
	assert.Equal(t, 0, page.Results[0].UnreadMessagesCount)
	assert.Equal(t, models.UserSummary{ID: 3}, page.Results[0].Participants[2], "unknown users keep their id")

	rooms.AssertExpectations(t)
	unread.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestStoreFailureIsInternalAndSilent(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	users := new(mocks.UserDirectoryMock)
	notifier := &mocks.RecordingNotifier{}
	svc := services.NewRoomService(rooms, new(mocks.UnreadCounterMock), users, services.NewRolePolicy(nil), notifier, nil)

	users.On("UserExists", mock.Anything, int64(2)).Return(true, nil).Once()
	rooms.On("CreateDirect", mock.Anything, int64(1), int64(2)).Return(nil, nil, assert.AnError).Once()

	_, _, err := svc.CreateDirect(context.Background(), models.CurrentUser{ID: 1}, 2)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
	assert.Equal(t, "internal server error", apperr.MessageOf(err))
	assert.Empty(t, notifier.Names())
	rooms.AssertExpectations(t)
}

func TestRestoreDirectClashIsConflict(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	notifier := &mocks.RecordingNotifier{}
	svc := services.NewRoomService(rooms, new(mocks.UnreadCounterMock), new(mocks.UserDirectoryMock), services.NewRolePolicy(nil), notifier, nil)

	rooms.On("RestoreRoom", mock.Anything, int64(5)).Return(nil, repositories.ErrDirectRoomConflict).Once()

	_, err := svc.Restore(context.Background(), models.CurrentUser{ID: 9, Role: "CEO"}, 5)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
	assert.Empty(t, notifier.Names())
	rooms.AssertExpectations(t)
}

func TestAuthorizerIsConsultedBeforeMutation(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	authz := new(mocks.AuthorizerMock)
	svc := services.NewRoomService(rooms, new(mocks.UnreadCounterMock), new(mocks.UserDirectoryMock), authz, &mocks.RecordingNotifier{}, nil)

	name := "Eng"
	room := models.Room{ID: 5, Kind: models.RoomGroup, Name: &name, OwnerID: 1, State: models.LifecycleActive, ParticipantIDs: []int64{1, 2, 3}}
	actor := models.CurrentUser{ID: 1}
	rooms.On("GetRoom", mock.Anything, int64(5)).Return(room, nil).Once()
	authz.On("Authorize", mock.Anything, actor, services.ActionManageRoom, mock.Anything).Return(apperr.Forbidden("nope")).Once()

	_, err := svc.UpdateName(context.Background(), actor, 5, "Ops")
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
	rooms.AssertNotCalled(t, "UpdateName", mock.Anything, mock.Anything, mock.Anything)
	authz.AssertExpectations(t)
}
