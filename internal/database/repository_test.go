package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The repository tests run against live backends named by these variables
// and are skipped when they are unset.
const (
	postgresDSNEnv = "CHAT_TEST_POSTGRES_DSN"
	mongoURIEnv    = "CHAT_TEST_MONGO_URI"
)

type testBackend struct {
	name string
	open func(t *testing.T) ChatRepository
	// insertMessageAt stores a message with a fixed creation time.
	insertMessageAt func(t *testing.T, repo ChatRepository, params CreateMessageParams, at time.Time)
}

var testBackends = []testBackend{
	{
		name: "postgres",
		open: func(t *testing.T) ChatRepository {
			dsn := os.Getenv(postgresDSNEnv)
			if dsn == "" {
				t.Skipf("%s not set", postgresDSNEnv)
			}

			repo, err := NewPgChatRepository(dsn)
			require.NoError(t, err, "failed to open postgres repository")
			t.Cleanup(func() { repo.Close() })

			_, err = repo.conn.Exec("TRUNCATE users, chats, messages")
			require.NoError(t, err, "failed to truncate tables")

			return repo
		},
		insertMessageAt: func(t *testing.T, repo ChatRepository, params CreateMessageParams, at time.Time) {
			_, err := repo.(*PgChatRepository).conn.Exec(
				"INSERT INTO messages ("+messageColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
				uuid.NewString(), params.ChatId, params.SenderId, params.Text, at, at,
			)
			require.NoError(t, err, "failed to insert message")
		},
	},
	{
		name: "mongo",
		open: func(t *testing.T) ChatRepository {
			uri := os.Getenv(mongoURIEnv)
			if uri == "" {
				t.Skipf("%s not set", mongoURIEnv)
			}

			repo, err := NewMongoChatRepository(uri, "chat_test_"+primitive.NewObjectID().Hex())
			require.NoError(t, err, "failed to open mongo repository")
			t.Cleanup(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				repo.db.Drop(ctx)
				repo.Close()
			})

			return repo
		},
		insertMessageAt: func(t *testing.T, repo ChatRepository, params CreateMessageParams, at time.Time) {
			_, err := repo.(*MongoChatRepository).db.Collection(messagesCollection).InsertOne(context.Background(), messageDocument{
				Id:        primitive.NewObjectID(),
				ChatId:    params.ChatId,
				SenderId:  params.SenderId,
				Text:      params.Text,
				CreatedAt: at,
				UpdatedAt: at,
			})
			require.NoError(t, err, "failed to insert message")
		},
	},
}

func TestChatRepository_users(t *testing.T) {
	for _, b := range testBackends {
		t.Run(b.name, func(t *testing.T) {
			repo := b.open(t)
			ctx := context.Background()

			params := CreateUserParams{Name: "alice", Email: "alice@example.com", PasswordHash: "hash"}
			user, err := repo.CreateUser(ctx, params)
			require.NoError(t, err)
			assert.NotEmpty(t, user.Id)
			assert.Equal(t, "hash", user.PasswordHash)

			_, err = repo.CreateUser(ctx, params)
			assert.ErrorIs(t, err, ErrDuplicateEmail)

			byId, err := repo.GetUserById(ctx, user.Id)
			require.NoError(t, err)
			assert.Equal(t, user.Email, byId.Email)

			byEmail, err := repo.GetUserByEmail(ctx, "alice@example.com")
			require.NoError(t, err)
			assert.Equal(t, user.Id, byEmail.Id)

			_, err = repo.GetUserByEmail(ctx, "nobody@example.com")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = repo.GetUserById(ctx, "not-an-id")
			assert.ErrorIs(t, err, ErrNotFound, "expected malformed ids to be reported as not found")

			users, err := repo.ListUsers(ctx)
			require.NoError(t, err)
			assert.Len(t, users, 1)
		})
	}
}

func TestChatRepository_chats(t *testing.T) {
	for _, b := range testBackends {
		t.Run(b.name, func(t *testing.T) {
			repo := b.open(t)
			ctx := context.Background()

			_, err := repo.FindChatBetween(ctx, "u1", "u2")
			assert.ErrorIs(t, err, ErrNotFound, "expected no chat before one is created")

			chat, created, err := repo.FindOrCreateChat(ctx, "u1", "u2")
			require.NoError(t, err)
			assert.True(t, created)
			assert.Equal(t, []string{"u1", "u2"}, chat.Members)

			again, created, err := repo.FindOrCreateChat(ctx, "u2", "u1")
			require.NoError(t, err)
			assert.False(t, created, "expected member order not to matter")
			assert.Equal(t, chat.Id, again.Id)

			found, err := repo.FindChatBetween(ctx, "u2", "u1")
			require.NoError(t, err)
			assert.Equal(t, chat.Id, found.Id)

			other, _, err := repo.FindOrCreateChat(ctx, "u3", "u1")
			require.NoError(t, err)

			_, err = repo.FindChatBetween(ctx, "u2", "u3")
			assert.ErrorIs(t, err, ErrNotFound, "expected a chat to need both members")

			chats, err := repo.ListChatsForUser(ctx, "u1")
			require.NoError(t, err)
			ids := make([]string, 0, len(chats))
			for _, c := range chats {
				ids = append(ids, c.Id)
			}
			assert.ElementsMatch(t, []string{chat.Id, other.Id}, ids)

			chats, err = repo.ListChatsForUser(ctx, "u2")
			require.NoError(t, err)
			require.Len(t, chats, 1)
			assert.Equal(t, chat.Id, chats[0].Id)

			chats, err = repo.ListChatsForUser(ctx, "u9")
			require.NoError(t, err)
			assert.Empty(t, chats)
		})
	}
}

func TestChatRepository_messages(t *testing.T) {
	for _, b := range testBackends {
		t.Run(b.name, func(t *testing.T) {
			repo := b.open(t)
			ctx := context.Background()

			created, err := repo.CreateMessage(ctx, CreateMessageParams{ChatId: "c2", SenderId: "u1", Text: "elsewhere"})
			require.NoError(t, err)
			assert.NotEmpty(t, created.Id)

			at := time.Now().UTC().Truncate(time.Millisecond)
			for _, text := range []string{"first", "second", "third"} {
				b.insertMessageAt(t, repo, CreateMessageParams{ChatId: "c1", SenderId: "u1", Text: text}, at)
			}
			b.insertMessageAt(t, repo, CreateMessageParams{ChatId: "c1", SenderId: "u2", Text: "earliest"}, at.Add(-time.Minute))

			messages, err := repo.ListMessagesForChat(ctx, "c1")
			require.NoError(t, err)

			texts := make([]string, 0, len(messages))
			for _, m := range messages {
				texts = append(texts, m.Text)
			}
			assert.Equal(t, []string{"earliest", "first", "second", "third"}, texts,
				"expected oldest first with ties in insertion order")

			messages, err = repo.ListMessagesForChat(ctx, "c2")
			require.NoError(t, err)
			require.Len(t, messages, 1)
			assert.Equal(t, created.Id, messages[0].Id)
		})
	}
}
