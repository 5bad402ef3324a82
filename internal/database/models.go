package database

import "time"

type User struct {
	Id           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Chat struct {
	Id        string
	Members   []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	Id        string
	ChatId    string
	SenderId  string
	Text      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CreateUserParams struct {
	Name         string
	Email        string
	PasswordHash string
}

type CreateMessageParams struct {
	ChatId   string
	SenderId string
	Text     string
}
