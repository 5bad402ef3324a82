package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	userColumns    = "id, name, email, password_hash, created_at, updated_at"
	chatColumns    = "id, members, created_at, updated_at"
	messageColumns = "id, chat_id, sender_id, text, created_at, updated_at"
)

// Rows sharing a created_at are ordered by id for chats and by insertion
// sequence for messages.
const (
	listUsersQuery    = "SELECT " + userColumns + " FROM users ORDER BY created_at, id"
	listChatsQuery    = "SELECT " + chatColumns + " FROM chats WHERE $1 = ANY(members) ORDER BY created_at, id"
	findChatQuery     = "SELECT " + chatColumns + " FROM chats WHERE members @> $1::text[] ORDER BY created_at, id LIMIT 1"
	listMessagesQuery = "SELECT " + messageColumns + " FROM messages WHERE chat_id = $1 ORDER BY created_at, seq"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func scanChat(row rowScanner) (Chat, error) {
	var c Chat
	err := row.Scan(
		&c.Id,
		pq.Array(&c.Members),
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	err := row.Scan(
		&m.Id,
		&m.ChatId,
		&m.SenderId,
		&m.Text,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

// notFound maps sql.ErrNoRows to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (db *PgChatRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO users ("+userColumns+") "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+userColumns,
		uuid.NewString(),
		params.Name,
		params.Email,
		params.PasswordHash,
		now,
		now,
	)

	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

func (db *PgChatRepository) GetUserById(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}

	row := db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1 LIMIT 1",
		id,
	)

	u, err := scanUser(row)
	return u, notFound(err)
}

func (db *PgChatRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1 LIMIT 1",
		email,
	)

	u, err := scanUser(row)
	return u, notFound(err)
}

func (db *PgChatRepository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := db.conn.QueryContext(ctx, listUsersQuery)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgChatRepository) FindOrCreateChat(ctx context.Context, firstId, secondId string) (Chat, bool, error) {
	chat, err := db.FindChatBetween(ctx, firstId, secondId)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Chat{}, false, err
	}

	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO chats ("+chatColumns+") VALUES ($1, $2, $3, $4) RETURNING "+chatColumns,
		uuid.NewString(),
		pq.Array([]string{firstId, secondId}),
		now,
		now,
	)

	chat, err = scanChat(row)
	if err != nil {
		return Chat{}, false, fmt.Errorf("insert chat: %w", err)
	}

	return chat, true, nil
}

func (db *PgChatRepository) ListChatsForUser(ctx context.Context, userId string) ([]Chat, error) {
	rows, err := db.conn.QueryContext(ctx, listChatsQuery, userId)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]Chat, 0)
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}

	return chats, rows.Err()
}

func (db *PgChatRepository) FindChatBetween(ctx context.Context, firstId, secondId string) (Chat, error) {
	row := db.conn.QueryRowContext(ctx, findChatQuery, pq.Array([]string{firstId, secondId}))

	c, err := scanChat(row)
	return c, notFound(err)
}

func (db *PgChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages ("+messageColumns+") VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+messageColumns,
		uuid.NewString(),
		params.ChatId,
		params.SenderId,
		params.Text,
		now,
		now,
	)

	m, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	return m, nil
}

func (db *PgChatRepository) ListMessagesForChat(ctx context.Context, chatId string) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx, listMessagesQuery, chatId)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
