package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-core/internal/models"
	"chat-core/internal/pagination"
	"chat-core/internal/repositories"
	"chat-core/internal/services"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) CreateDirect(ctx context.Context, requesterID, otherID int64) (models.Room, models.DirectOutcome, error) {
	args := m.Called(ctx, requesterID, otherID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	var outcome models.DirectOutcome
	if val := args.Get(1); val != nil {
		outcome = val.(models.DirectOutcome)
	}
	return room, outcome, args.Error(2)
}

func (m *RoomRepositoryMock) CreateGroup(ctx context.Context, ownerID int64, name string, memberIDs []int64) (models.Room, error) {
	args := m.Called(ctx, ownerID, name, memberIDs)
	return roomArg(args), args.Error(1)
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID int64) (models.Room, error) {
	args := m.Called(ctx, roomID)
	return roomArg(args), args.Error(1)
}

func (m *RoomRepositoryMock) ListRoomsForUser(ctx context.Context, userID int64, search string, q pagination.Query) ([]models.Room, error) {
	args := m.Called(ctx, userID, search, q)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepositoryMock) AddParticipants(ctx context.Context, roomID int64, userIDs []int64) ([]int64, error) {
	args := m.Called(ctx, roomID, userIDs)
	var added []int64
	if val := args.Get(0); val != nil {
		added = val.([]int64)
	}
	return added, args.Error(1)
}

func (m *RoomRepositoryMock) RemoveParticipant(ctx context.Context, roomID, userID int64) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) UpdateName(ctx context.Context, roomID int64, name string) (models.Room, error) {
	args := m.Called(ctx, roomID, name)
	return roomArg(args), args.Error(1)
}

func (m *RoomRepositoryMock) SoftDeleteRoom(ctx context.Context, roomID int64) (models.Room, error) {
	args := m.Called(ctx, roomID)
	return roomArg(args), args.Error(1)
}

func (m *RoomRepositoryMock) RestoreRoom(ctx context.Context, roomID int64) (models.Room, error) {
	args := m.Called(ctx, roomID)
	return roomArg(args), args.Error(1)
}

func roomArg(args mock.Arguments) models.Room {
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, roomID, senderID int64, content string) (models.Message, error) {
	args := m.Called(ctx, roomID, senderID, content)
	return messageArg(args), args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	return messageArg(args), args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, roomID int64, filter repositories.MessageFilter, q pagination.Query) ([]models.Message, error) {
	args := m.Called(ctx, roomID, filter, q)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateContent(ctx context.Context, messageID int64, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, content)
	return messageArg(args), args.Error(1)
}

func (m *MessageRepositoryMock) SoftDeleteMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	return messageArg(args), args.Error(1)
}

func (m *MessageRepositoryMock) RestoreMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	return messageArg(args), args.Error(1)
}

func messageArg(args mock.Arguments) models.Message {
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg
}

type ReadTrackerMock struct {
	mock.Mock
}

func (m *ReadTrackerMock) MarkRoomRead(ctx context.Context, roomID, userID int64) (int, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Int(0), args.Error(1)
}

type UnreadCounterMock struct {
	mock.Mock
}

func (m *UnreadCounterMock) UnreadCounts(ctx context.Context, userID int64, roomIDs []int64) (map[int64]int, error) {
	args := m.Called(ctx, userID, roomIDs)
	var counts map[int64]int
	if val := args.Get(0); val != nil {
		counts = val.(map[int64]int)
	}
	return counts, args.Error(1)
}

type UserDirectoryMock struct {
	mock.Mock
}

func (m *UserDirectoryMock) UserExists(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *UserDirectoryMock) BulkUsers(ctx context.Context, ids []int64) ([]models.UserSummary, error) {
	args := m.Called(ctx, ids)
	var users []models.UserSummary
	if val := args.Get(0); val != nil {
		users = val.([]models.UserSummary)
	}
	return users, args.Error(1)
}

type AuthorizerMock struct {
	mock.Mock
}

func (m *AuthorizerMock) Authorize(ctx context.Context, actor models.CurrentUser, action services.Action, res services.Resource) error {
	args := m.Called(ctx, actor, action, res)
	return args.Error(0)
}

var _ repositories.RoomRepository = (*RoomRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.ReadTracker = (*ReadTrackerMock)(nil)
var _ repositories.UnreadCounter = (*UnreadCounterMock)(nil)
var _ services.UserDirectory = (*UserDirectoryMock)(nil)
var _ services.Authorizer = (*AuthorizerMock)(nil)
