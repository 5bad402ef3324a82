package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/chat-backend/internal/database"
	"github.com/npezzotti/chat-backend/internal/server"
	"github.com/npezzotti/chat-backend/internal/types"
)

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=3,max=30"`
	Email    string `json:"email" validate:"required,email,max=200"`
	Password string `json:"password" validate:"required,min=4,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type CreateChatRequest struct {
	FirstId  string `json:"firstId" validate:"required"`
	SecondId string `json:"secondId" validate:"required"`
}

type CreateMessageRequest struct {
	ChatId   string `json:"chatId" validate:"required"`
	SenderId string `json:"senderId" validate:"required"`
	Text     string `json:"text" validate:"required"`
}

type UserResponse struct {
	User types.User `json:"user"`
}

type UsersResponse struct {
	Users []types.User `json:"users"`
}

type OnlineUsersResponse struct {
	OnlineUsers []server.OnlineEntry `json:"onlineUsers"`
}

type ChatResponse struct {
	Chat *types.Chat `json:"chat"`
}

type ChatsResponse struct {
	Chats []types.Chat `json:"chats"`
}

type MessageResponse struct {
	Message types.Message `json:"message"`
}

type MessagesResponse struct {
	Messages []types.Message `json:"messages"`
}

func toUser(u database.User) types.User {
	return types.User{
		Id:        u.Id,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toChat(c database.Chat) types.Chat {
	members := c.Members
	if members == nil {
		members = []string{}
	}

	return types.Chat{
		Id:        c.Id,
		Members:   members,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toMessage(m database.Message) types.Message {
	return types.Message{
		Id:        m.Id,
		ChatId:    m.ChatId,
		SenderId:  m.SenderId,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorw("json encode", "error", err)
	}
}

// writeError logs server side failures before writing errResp.
func (s *GoChatApp) writeError(w http.ResponseWriter, r *http.Request, errResp *ApiError) {
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", errResp.Err)
	}

	s.writeJson(w, errResp.StatusCode, errResp)
}

// repositoryError maps a repository failure to its HTTP response.
func repositoryError(err error) *ApiError {
	if errors.Is(err, database.ErrNotFound) {
		return NewNotFoundError()
	}

	return NewInternalServerError(err)
}

func (s *GoChatApp) decodeRequest(r *http.Request, v any) *ApiError {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return NewBadRequestError()
	}

	if err := s.validate.Struct(v); err != nil {
		return NewValidationError(err)
	}

	return nil
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *GoChatApp) issueSession(w http.ResponseWriter, r *http.Request, statusCode int, user database.User) {
	token, err := s.createJwtForSession(user.Id, s.tokenTTL)
	if err != nil {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	http.SetCookie(w, createJwtCookie(token, s.tokenTTL))

	s.writeJson(w, statusCode, types.AuthenticatedUser{
		Id:    user.Id,
		Name:  user.Name,
		Email: user.Email,
		Token: token,
	})
}

func (s *GoChatApp) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if errResp := s.decodeRequest(r, &req); errResp != nil {
		s.writeError(w, r, errResp)
		return
	}

	_, err := s.db.GetUserByEmail(r.Context(), req.Email)
	if err == nil {
		s.writeError(w, r, NewBadRequestErrorMessage(msgUserExists))
		return
	}
	if !errors.Is(err, database.ErrNotFound) {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	user, err := s.db.CreateUser(r.Context(), database.CreateUserParams{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: pwdHash,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			s.writeError(w, r, NewBadRequestErrorMessage(msgUserExists))
			return
		}
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	s.log.Infow("user registered", "user_id", user.Id)
	s.issueSession(w, r, http.StatusCreated, user)
}

func (s *GoChatApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if errResp := s.decodeRequest(r, &req); errResp != nil {
		s.writeError(w, r, errResp)
		return
	}

	user, err := s.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, r, NewBadRequestErrorMessage(msgInvalidCredentials))
			return
		}
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	if !verifyPassword(user.PasswordHash, req.Password) {
		s.writeError(w, r, NewBadRequestErrorMessage(msgInvalidCredentials))
		return
	}

	s.issueSession(w, r, http.StatusOK, user)
}

func (s *GoChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, expiredJwtCookie())
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.db.GetUserById(r.Context(), r.PathValue("userId"))
	if err != nil {
		s.writeError(w, r, repositoryError(err))
		return
	}

	s.writeJson(w, http.StatusOK, UserResponse{User: toUser(user)})
}

func (s *GoChatApp) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.db.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	resp := UsersResponse{Users: make([]types.User, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, toUser(u))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *GoChatApp) onlineUsers(w http.ResponseWriter, _ *http.Request) {
	entries := s.cs.OnlineUsers()
	if entries == nil {
		entries = []server.OnlineEntry{}
	}

	s.writeJson(w, http.StatusOK, OnlineUsersResponse{OnlineUsers: entries})
}

func (s *GoChatApp) createChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if errResp := s.decodeRequest(r, &req); errResp != nil {
		s.writeError(w, r, errResp)
		return
	}

	chat, created, err := s.db.FindOrCreateChat(r.Context(), req.FirstId, req.SecondId)
	if err != nil {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	statusCode := http.StatusOK
	if created {
		statusCode = http.StatusCreated
	}

	c := toChat(chat)
	s.writeJson(w, statusCode, ChatResponse{Chat: &c})
}

func (s *GoChatApp) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.db.ListChatsForUser(r.Context(), r.PathValue("userId"))
	if err != nil {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	resp := ChatsResponse{Chats: make([]types.Chat, 0, len(chats))}
	for _, c := range chats {
		resp.Chats = append(resp.Chats, toChat(c))
	}

	s.writeJson(w, http.StatusOK, resp)
}

// findChat answers 200 with a null chat when the two users have none.
func (s *GoChatApp) findChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.db.FindChatBetween(r.Context(), r.PathValue("firstId"), r.PathValue("secondId"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeJson(w, http.StatusOK, ChatResponse{})
			return
		}
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	c := toChat(chat)
	s.writeJson(w, http.StatusOK, ChatResponse{Chat: &c})
}

func (s *GoChatApp) createMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, r, NewUnauthorizedError())
		return
	}

	var req CreateMessageRequest
	if errResp := s.decodeRequest(r, &req); errResp != nil {
		s.writeError(w, r, errResp)
		return
	}

	// messages are only stored under the caller's own id
	if req.SenderId != userId {
		s.writeError(w, r, NewForbiddenError())
		return
	}

	msg, err := s.db.CreateMessage(r.Context(), database.CreateMessageParams{
		ChatId:   req.ChatId,
		SenderId: req.SenderId,
		Text:     req.Text,
	})
	if err != nil {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, MessageResponse{Message: toMessage(msg)})
}

func (s *GoChatApp) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.db.ListMessagesForChat(r.Context(), r.PathValue("chatId"))
	if err != nil {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	resp := MessagesResponse{Messages: make([]types.Message, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, toMessage(m))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *GoChatApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// non-browser clients send no origin
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}

func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("error upgrading connection", "error", err)
		return
	}

	client, err := server.NewClient(conn, s.cs, s.log.Named("client"))
	if err != nil {
		s.log.Errorw("failed to create client", "error", err)
		conn.Close()
		return
	}

	if !s.cs.RegisterClient(client) {
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
