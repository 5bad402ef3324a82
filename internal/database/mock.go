package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetUserById(ctx context.Context, id string) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) ListUsers(ctx context.Context) ([]User, error) {
	args := m.Called()
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockChatRepository) FindOrCreateChat(ctx context.Context, firstId, secondId string) (Chat, bool, error) {
	args := m.Called(firstId, secondId)
	return args.Get(0).(Chat), args.Bool(1), args.Error(2)
}
func (m *MockChatRepository) ListChatsForUser(ctx context.Context, userId string) ([]Chat, error) {
	args := m.Called(userId)
	return args.Get(0).([]Chat), args.Error(1)
}
func (m *MockChatRepository) FindChatBetween(ctx context.Context, firstId, secondId string) (Chat, error) {
	args := m.Called(firstId, secondId)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) ListMessagesForChat(ctx context.Context, chatId string) ([]Message, error) {
	args := m.Called(chatId)
	return args.Get(0).([]Message), args.Error(1)
}
