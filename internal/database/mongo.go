package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "users"
	chatsCollection    = "chats"
	messagesCollection = "messages"

	mongoConnectTimeout = 10 * time.Second
)

// oldestFirst breaks createdAt ties by _id, which grows with insertion order.
var oldestFirst = bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}

type userDocument struct {
	Id        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Password  string             `bson:"password"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d userDocument) model() User {
	return User{
		Id:           d.Id.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type chatDocument struct {
	Id        primitive.ObjectID `bson:"_id,omitempty"`
	Members   []string           `bson:"members"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d chatDocument) model() Chat {
	return Chat{
		Id:        d.Id.Hex(),
		Members:   d.Members,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type messageDocument struct {
	Id        primitive.ObjectID `bson:"_id,omitempty"`
	ChatId    string             `bson:"chatId"`
	SenderId  string             `bson:"senderId"`
	Text      string             `bson:"text"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d messageDocument) model() Message {
	return Message{
		Id:        d.Id.Hex(),
		ChatId:    d.ChatId,
		SenderId:  d.SenderId,
		Text:      d.Text,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// MongoChatRepository stores users, chats and messages as documents, one
// collection each.
type MongoChatRepository struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoChatRepository(uri, dbName string) (*MongoChatRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}

	repo := &MongoChatRepository{
		client: client,
		db:     client.Database(dbName),
	}

	if err := repo.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	return repo, nil
}

func (db *MongoChatRepository) ensureIndexes(ctx context.Context) error {
	_, err := db.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}

	_, err = db.db.Collection(chatsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "members", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create chats index: %w", err)
	}

	_, err = db.db.Collection(messagesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}

	return nil
}

func (db *MongoChatRepository) Ping(ctx context.Context) error {
	return db.client.Ping(ctx, nil)
}

func (db *MongoChatRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}

func (db *MongoChatRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := userDocument{
		Id:        primitive.NewObjectID(),
		Name:      params.Name,
		Email:     params.Email,
		Password:  params.PasswordHash,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := db.db.Collection(usersCollection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return doc.model(), nil
}

func (db *MongoChatRepository) findUser(ctx context.Context, filter bson.M) (User, error) {
	var doc userDocument
	err := db.db.Collection(usersCollection).FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}

	return doc.model(), nil
}

func (db *MongoChatRepository) GetUserById(ctx context.Context, id string) (User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return User{}, ErrNotFound
	}

	return db.findUser(ctx, bson.M{"_id": oid})
}

func (db *MongoChatRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return db.findUser(ctx, bson.M{"email": email})
}

func (db *MongoChatRepository) ListUsers(ctx context.Context) ([]User, error) {
	cur, err := db.db.Collection(usersCollection).Find(ctx, bson.M{},
		options.Find().SetSort(oldestFirst))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	users := make([]User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.model())
	}

	return users, nil
}

func membersFilter(firstId, secondId string) bson.M {
	return bson.M{"members": bson.M{"$all": bson.A{firstId, secondId}}}
}

func (db *MongoChatRepository) FindOrCreateChat(ctx context.Context, firstId, secondId string) (Chat, bool, error) {
	chat, err := db.FindChatBetween(ctx, firstId, secondId)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Chat{}, false, err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := chatDocument{
		Id:        primitive.NewObjectID(),
		Members:   []string{firstId, secondId},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := db.db.Collection(chatsCollection).InsertOne(ctx, doc); err != nil {
		return Chat{}, false, fmt.Errorf("insert chat: %w", err)
	}

	return doc.model(), true, nil
}

func (db *MongoChatRepository) ListChatsForUser(ctx context.Context, userId string) ([]Chat, error) {
	cur, err := db.db.Collection(chatsCollection).Find(ctx,
		bson.M{"members": bson.M{"$in": bson.A{userId}}},
		options.Find().SetSort(oldestFirst))
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	var docs []chatDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode chats: %w", err)
	}

	chats := make([]Chat, 0, len(docs))
	for _, doc := range docs {
		chats = append(chats, doc.model())
	}

	return chats, nil
}

func (db *MongoChatRepository) FindChatBetween(ctx context.Context, firstId, secondId string) (Chat, error) {
	var doc chatDocument
	err := db.db.Collection(chatsCollection).FindOne(ctx, membersFilter(firstId, secondId),
		options.FindOne().SetSort(oldestFirst)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Chat{}, ErrNotFound
		}
		return Chat{}, fmt.Errorf("find chat: %w", err)
	}

	return doc.model(), nil
}

func (db *MongoChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := messageDocument{
		Id:        primitive.NewObjectID(),
		ChatId:    params.ChatId,
		SenderId:  params.SenderId,
		Text:      params.Text,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := db.db.Collection(messagesCollection).InsertOne(ctx, doc); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	return doc.model(), nil
}

func (db *MongoChatRepository) ListMessagesForChat(ctx context.Context, chatId string) ([]Message, error) {
	cur, err := db.db.Collection(messagesCollection).Find(ctx,
		bson.M{"chatId": chatId},
		options.Find().SetSort(oldestFirst))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	messages := make([]Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, doc.model())
	}

	return messages, nil
}
