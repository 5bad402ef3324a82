package database

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a lookup by id or email matches nothing.
	// Ids that are malformed for the backend are reported the same way.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned by CreateUser when the email is taken.
	ErrDuplicateEmail = errors.New("email already registered")
)

// ChatRepository is the persistence collaborator of the chat backend. The
// realtime core never calls it; REST handlers do.
type ChatRepository interface {
	Ping(ctx context.Context) error
	Close() error

	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserById(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)

	// FindOrCreateChat returns the chat whose members include both ids,
	// creating it when none exists. created reports whether it was inserted.
	FindOrCreateChat(ctx context.Context, firstId, secondId string) (chat Chat, created bool, err error)
	ListChatsForUser(ctx context.Context, userId string) ([]Chat, error)
	// FindChatBetween returns ErrNotFound when no chat includes both ids.
	FindChatBetween(ctx context.Context, firstId, secondId string) (Chat, error)

	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	ListMessagesForChat(ctx context.Context, chatId string) ([]Message, error)
}
