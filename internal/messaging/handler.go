package messaging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bigkid-dev/Bmovez/internal/apperr"
	"github.com/bigkid-dev/Bmovez/internal/httpx"
	myMiddleware "github.com/bigkid-dev/Bmovez/internal/middleware"
	"github.com/bigkid-dev/Bmovez/internal/storage"
)

var validate = validator.New()

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

const maxUploadSize = 32 << 20

type Handler struct {
	svc   *Service
	hub   *Hub
	store storage.Storage
	log   *slog.Logger
}

func NewHandler(svc *Service, hub *Hub, store storage.Storage, log *slog.Logger) *Handler {
	return &Handler{svc: svc, hub: hub, store: store, log: log}
}

type createChannelRequest struct {
	Title       string  `json:"title" validate:"required,max=100"`
	Description *string `json:"description"`
	Icon        *string `json:"icon" validate:"omitempty,max=300"`
}

type updateChannelRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=100"`
	Description *string `json:"description"`
	Icon        *string `json:"icon" validate:"omitempty,max=300"`
}

type memberChangeRequest struct {
	Users []uuid.UUID `json:"users" validate:"required,min=1"`
}

type createMessageRequest struct {
	Text        string      `json:"text" validate:"required,max=3000"`
	Replying    *uuid.UUID  `json:"replying"`
	Files       []uuid.UUID `json:"files"`
	TaggedUsers []uuid.UUID `json:"tagged_users"`
}

// updateMessageRequest deliberately decodes only the body text: channel,
// author, reply target and attachments a client may send along are dropped,
// not rejected.
type updateMessageRequest struct {
	Text string `json:"text" validate:"required,max=3000"`
}

type createReactionRequest struct {
	Message uuid.UUID `json:"message" validate:"required"`
	Emoji   string    `json:"emoji" validate:"required,max=50"`
}

type updateReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=50"`
}

func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	views, err := h.svc.ListChannels(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createChannelRequest
	if !decode(w, r, &req) {
		return
	}

	view, err := h.svc.CreateGroupChannel(r.Context(), userID, CreateGroupInput{
		Title:       req.Title,
		Description: req.Description,
		Icon:        req.Icon,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	userID, channelID, ok := userAndParam(w, r, "channelID")
	if !ok {
		return
	}

	view, err := h.svc.GetChannel(r.Context(), userID, channelID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	userID, channelID, ok := userAndParam(w, r, "channelID")
	if !ok {
		return
	}

	var req updateChannelRequest
	if !decode(w, r, &req) {
		return
	}

	view, err := h.svc.UpdateChannel(r.Context(), userID, channelID, ChannelPatch{
		Title:       req.Title,
		Description: req.Description,
		Icon:        req.Icon,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	userID, channelID, ok := userAndParam(w, r, "channelID")
	if !ok {
		return
	}

	if err := h.svc.DeleteChannel(r.Context(), userID, channelID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddMembers(w http.ResponseWriter, r *http.Request) {
	userID, channelID, ok := userAndParam(w, r, "channelID")
	if !ok {
		return
	}

	var req memberChangeRequest
	if !decode(w, r, &req) {
		return
	}

	view, err := h.svc.AddMembers(r.Context(), userID, channelID, req.Users)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) RemoveMembers(w http.ResponseWriter, r *http.Request) {
	userID, channelID, ok := userAndParam(w, r, "channelID")
	if !ok {
		return
	}

	var req memberChangeRequest
	if !decode(w, r, &req) {
		return
	}

	view, err := h.svc.RemoveMembers(r.Context(), userID, channelID, req.Users)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, channelID, ok := userAndParam(w, r, "channelID")
	if !ok {
		return
	}

	views, err := h.svc.ListMessages(r.Context(), userID, channelID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	userID, channelID, ok := userAndParam(w, r, "channelID")
	if !ok {
		return
	}

	var req createMessageRequest
	if !decode(w, r, &req) {
		return
	}

	view, err := h.svc.CreateMessage(r.Context(), userID, channelID, CreateMessageInput{
		Body:        req.Text,
		ReplyTo:     req.Replying,
		FileIDs:     req.Files,
		TaggedUsers: req.TaggedUsers,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, view)
}

// SendDirectMessage posts to the canonical DM channel for the recipient,
// creating it on first contact.
func (h *Handler) SendDirectMessage(w http.ResponseWriter, r *http.Request) {
	userID, recipientID, ok := userAndParam(w, r, "userID")
	if !ok {
		return
	}

	var req createMessageRequest
	if !decode(w, r, &req) {
		return
	}

	view, err := h.svc.SendDirectMessage(r.Context(), userID, recipientID, CreateMessageInput{
		Body:        req.Text,
		ReplyTo:     req.Replying,
		FileIDs:     req.Files,
		TaggedUsers: req.TaggedUsers,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	userID, channelID, ok := userAndParam(w, r, "channelID")
	if !ok {
		return
	}
	messageID, ok := pathID(w, r, "messageID")
	if !ok {
		return
	}

	view, err := h.svc.GetMessage(r.Context(), userID, channelID, messageID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	userID, channelID, ok := userAndParam(w, r, "channelID")
	if !ok {
		return
	}
	messageID, ok := pathID(w, r, "messageID")
	if !ok {
		return
	}

	var req updateMessageRequest
	if !decode(w, r, &req) {
		return
	}

	view, err := h.svc.UpdateMessage(r.Context(), userID, channelID, messageID, req.Text)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, channelID, ok := userAndParam(w, r, "channelID")
	if !ok {
		return
	}
	messageID, ok := pathID(w, r, "messageID")
	if !ok {
		return
	}

	if err := h.svc.DeleteMessage(r.Context(), userID, channelID, messageID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateReaction(w http.ResponseWriter, r *http.Request) {
	userID, channelID, ok := userAndParam(w, r, "channelID")
	if !ok {
		return
	}

	var req createReactionRequest
	if !decode(w, r, &req) {
		return
	}

	view, err := h.svc.CreateReaction(r.Context(), userID, channelID, req.Message, req.Emoji)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) UpdateReaction(w http.ResponseWriter, r *http.Request) {
	userID, channelID, ok := userAndParam(w, r, "channelID")
	if !ok {
		return
	}
	reactionID, ok := pathID(w, r, "reactionID")
	if !ok {
		return
	}

	var req updateReactionRequest
	if !decode(w, r, &req) {
		return
	}

	view, err := h.svc.UpdateReaction(r.Context(), userID, channelID, reactionID, req.Emoji)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) DeleteReaction(w http.ResponseWriter, r *http.Request) {
	userID, channelID, ok := userAndParam(w, r, "channelID")
	if !ok {
		return
	}
	reactionID, ok := pathID(w, r, "reactionID")
	if !ok {
		return
	}

	if err := h.svc.DeleteReaction(r.Context(), userID, channelID, reactionID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadFile accepts a multipart upload: a "file" part and a "type" field of
// IMAGE or DOCUMENT.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fileType := FileType(r.FormValue("type"))
	if fileType != FileImage && fileType != FileDocument {
		httpx.WriteError(w, fmt.Errorf("file type %q: %w", fileType, apperr.ErrInvalidReference))
		return
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer part.Close()

	locator, err := h.store.Save(r.Context(), userID, header.Filename, part)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	file, err := h.svc.CreateFile(r.Context(), userID, fileType, locator)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, file)
}

func (h *Handler) ListChannelFiles(w http.ResponseWriter, r *http.Request) {
	userID, channelID, ok := userAndParam(w, r, "channelID")
	if !ok {
		return
	}

	files, err := h.svc.ListChannelFiles(r.Context(), userID, channelID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, files)
}

// ServeWs upgrades the connection and registers the client for the channels
// the user is a member of.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	channelIDs, err := h.svc.ChannelIDsForUser(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}

	channels := make(map[uuid.UUID]bool, len(channelIDs))
	for _, id := range channelIDs {
		channels[id] = true
	}

	client := &Client{
		Hub:      h.hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		UserID:   userID,
		Channels: channels,
		Log:      h.log,
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

func currentUser(r *http.Request) (uuid.UUID, bool) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(uuid.UUID)
	return userID, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.WriteError(w, fmt.Errorf("%s: %w", name, apperr.ErrInvalidReference))
		return uuid.Nil, false
	}
	return id, true
}

func userAndParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return uuid.Nil, uuid.Nil, false
	}
	id, ok := pathID(w, r, name)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(v); err != nil {
		httpx.WriteError(w, err)
		return false
	}
	return true
}
