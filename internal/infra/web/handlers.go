package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"persona-ai-chat/internal/domain"
	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/adapter"
	"persona-ai-chat/internal/usecase"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondErr maps domain errors onto HTTP statuses. Unknown errors are a
// 500 with a generic body; details stay in the log.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	var provErr *adapter.ProviderError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrIndexOutOfRange),
		errors.Is(err, domain.ErrNotAssistantMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrAlreadyExists):
		http.Error(w, "Already exists", http.StatusConflict)
	case errors.Is(err, domain.ErrSummaryInFlight):
		http.Error(w, "Summarization already running", http.StatusConflict)
	case errors.As(err, &provErr) && provErr.Kind == adapter.KindQuota:
		if provErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(provErr.RetryAfter)))
		}
		http.Error(w, "Provider quota exhausted", http.StatusTooManyRequests)
	case errors.Is(err, domain.ErrNoCredential):
		http.Error(w, "No usable API credential", http.StatusTooManyRequests)
	default:
		s.log.Error().Err(err).Msg("request failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// retryAfterSeconds rounds up so a sub-second hint never becomes 0.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ---- session ----

type sessionCreateRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) sessionCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	uid := strings.TrimSpace(req.UserID)
	if uid == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	token, err := s.auth.Mint(w, uid)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) sessionDelete(w http.ResponseWriter, _ *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// ---- conversations ----

type conversationCreateRequest struct {
	Model               string `json:"model"`
	PersonaName         string `json:"persona_name"`
	PersonaInstructions string `json:"persona_instructions"`
}

// conversationSummary is the list-view projection: metadata only, no
// message log.
type conversationSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	PersonaName string `json:"persona_name"`
	Model       string `json:"model"`
	UpdatedAt   string `json:"updated_at"`
}

type messageView struct {
	Index     int       `json:"index"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens"`
	Timestamp time.Time `json:"timestamp"`
}

func toMessageView(m model.ChatMessage) messageView {
	return messageView{
		Index:     m.Index,
		Role:      m.Role,
		Content:   m.Content,
		Tokens:    m.Tokens,
		Timestamp: m.Timestamp,
	}
}

func toMessageViews(msgs []model.ChatMessage) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageView(m))
	}
	return out
}

// conversationView is the detail projection: the full aggregate in the
// API's snake_case vocabulary.
type conversationView struct {
	ID                  string        `json:"id"`
	UserID              string        `json:"user_id"`
	Title               string        `json:"title"`
	TitleEdited         bool          `json:"title_edited"`
	PersonaName         string        `json:"persona_name"`
	PersonaInstructions string        `json:"persona_instructions"`
	UserNote            string        `json:"user_note"`
	Model               string        `json:"model"`
	ContextSummary      string        `json:"context_summary"`
	SummaryCheckpoint   int           `json:"summary_checkpoint"`
	Messages            []messageView `json:"messages"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

func toConversationView(c *model.Conversation) conversationView {
	return conversationView{
		ID:                  c.ID,
		UserID:              c.UserID,
		Title:               c.Title,
		TitleEdited:         c.TitleEdited,
		PersonaName:         c.PersonaName,
		PersonaInstructions: c.PersonaInstructions,
		UserNote:            c.UserNote,
		Model:               c.Model,
		ContextSummary:      c.ContextSummary,
		SummaryCheckpoint:   c.SummaryCheckpoint,
		Messages:            toMessageViews(c.Messages),
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func (s *Server) conversationList(w http.ResponseWriter, r *http.Request) {
	convos, err := s.chatUC.List(r.Context(), userID(r.Context()))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	items := make([]conversationSummary, 0, len(convos))
	for _, c := range convos {
		items = append(items, conversationSummary{
			ID:          c.ID,
			Title:       c.Title,
			PersonaName: c.PersonaName,
			Model:       c.Model,
			UpdatedAt:   c.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Data []conversationSummary `json:"data"`
	}{Data: items})
}

func (s *Server) conversationCreate(w http.ResponseWriter, r *http.Request) {
	var req conversationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	c, err := s.chatUC.StartConversation(r.Context(), userID(r.Context()), req.Model, req.PersonaName, req.PersonaInstructions)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConversationView(c))
}

func (s *Server) conversationGet(w http.ResponseWriter, r *http.Request) {
	c, err := s.chatUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationView(c))
}

func (s *Server) conversationDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.chatUC.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- messages ----

type messageSendRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	Message  messageView `json:"message"`
	Degraded bool        `json:"degraded,omitempty"`
}

func (s *Server) messageSend(w http.ResponseWriter, r *http.Request) {
	var req messageSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	res, err := s.chatUC.SendMessage(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: toMessageView(res.Message), Degraded: res.Degraded})
}

func (s *Server) messageWindow(w http.ResponseWriter, r *http.Request) {
	start, _ := strconv.Atoi(r.URL.Query().Get("start"))
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	if count <= 0 {
		count = 50
	}
	if start < 0 {
		start = 0
	}
	msgs, err := s.chatUC.Window(r.Context(), chi.URLParam(r, "id"), start, count)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data  []messageView `json:"data"`
		Start int           `json:"start"`
		Count int           `json:"count"`
	}{Data: toMessageViews(msgs), Start: start, Count: count})
}

type messageEditRequest struct {
	Content string `json:"content"`
}

func (s *Server) messageEdit(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "Message index must be an integer", http.StatusBadRequest)
		return
	}
	var req messageEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.chatUC.EditMessage(r.Context(), chi.URLParam(r, "id"), idx, req.Content); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) messageReroll(w http.ResponseWriter, r *http.Request) {
	res, err := s.chatUC.RerollLast(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: toMessageView(res.Message), Degraded: res.Degraded})
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request) {
	if err := s.summaryUC.SummarizeNow(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- conversation metadata ----

func (s *Server) noteSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.chatUC.SetUserNote(r.Context(), chi.URLParam(r, "id"), req.Note); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) personaSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		Instructions string `json:"instructions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.chatUC.SetPersona(r.Context(), chi.URLParam(r, "id"), req.Name, req.Instructions); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) titleSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.chatUC.SetTitle(r.Context(), chi.URLParam(r, "id"), req.Title); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- lorebook ----

type lorebookCreateRequest struct {
	Keywords []string `json:"keywords"`
	Content  string   `json:"content"`
}

type lorebookView struct {
	ID        string    `json:"id"`
	Keywords  []string  `json:"keywords"`
	Content   string    `json:"content"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toLorebookView(e *model.LorebookEntry) lorebookView {
	return lorebookView{
		ID:        e.ID,
		Keywords:  e.Keywords,
		Content:   e.Content,
		Enabled:   e.Enabled,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func (s *Server) lorebookList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.lorebookUC.List(r.Context(), userID(r.Context()))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	items := make([]lorebookView, 0, len(entries))
	for _, e := range entries {
		items = append(items, toLorebookView(e))
	}
	writeJSON(w, http.StatusOK, struct {
		Data []lorebookView `json:"data"`
	}{Data: items})
}

func (s *Server) lorebookCreate(w http.ResponseWriter, r *http.Request) {
	var req lorebookCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	e, err := s.lorebookUC.Create(r.Context(), userID(r.Context()), req.Keywords, req.Content)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLorebookView(e))
}

type lorebookUpdateRequest struct {
	Keywords *[]string `json:"keywords"`
	Content  *string   `json:"content"`
	Enabled  *bool     `json:"enabled"`
}

func (s *Server) lorebookUpdate(w http.ResponseWriter, r *http.Request) {
	e, err := s.lorebookOwned(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	var req lorebookUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	updated, err := s.lorebookUC.Update(r.Context(), e.ID, usecase.LorebookUpdate{
		Keywords: req.Keywords,
		Content:  req.Content,
		Enabled:  req.Enabled,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLorebookView(updated))
}

func (s *Server) lorebookDelete(w http.ResponseWriter, r *http.Request) {
	e, err := s.lorebookOwned(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if err := s.lorebookUC.Delete(r.Context(), e.ID); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lorebookOwned(r *http.Request) (*model.LorebookEntry, error) {
	e, err := s.lorebookUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if e.UserID != userID(r.Context()) {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

// ---- credentials ----

type credentialCreateRequest struct {
	Secret      string `json:"secret"`
	DisplayName string `json:"display_name"`
}

// credentialView never exposes the secret back to the client.
type credentialView struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	IsActive      bool   `json:"is_active"`
	QuotaExceeded bool   `json:"quota_exceeded"`
}

func (s *Server) credentialList(w http.ResponseWriter, r *http.Request) {
	creds, err := s.credUC.List(r.Context(), userID(r.Context()))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	items := make([]credentialView, 0, len(creds))
	for _, c := range creds {
		items = append(items, credentialView{
			ID:            c.ID,
			DisplayName:   c.DisplayName,
			IsActive:      c.IsActive,
			QuotaExceeded: c.QuotaExceededAt != nil,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Data []credentialView `json:"data"`
	}{Data: items})
}

func (s *Server) credentialCreate(w http.ResponseWriter, r *http.Request) {
	var req credentialCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	c, err := s.credUC.Add(r.Context(), userID(r.Context()), req.Secret, req.DisplayName)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, credentialView{
		ID: c.ID, DisplayName: c.DisplayName, IsActive: c.IsActive,
	})
}

func (s *Server) credentialPin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CredentialID string `json:"credential_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.credUC.Pin(r.Context(), userID(r.Context()), req.CredentialID); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) credentialDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	creds, err := s.credUC.List(r.Context(), userID(r.Context()))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	owned := false
	for _, c := range creds {
		if c.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		http.NotFound(w, r)
		return
	}
	if err := s.credUC.Remove(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- settings ----

type settingsView struct {
	PinnedCredentialID string `json:"pinned_credential_id"`
	ReplyLength        string `json:"reply_length"`
	ThinkingEffort     string `json:"thinking_effort"`
	LorebookCap        int    `json:"lorebook_cap"`
	Language           string `json:"language"`
}

func toSettingsView(s *model.UserSettings) settingsView {
	return settingsView{
		PinnedCredentialID: s.PinnedCredentialID,
		ReplyLength:        string(s.ReplyLength),
		ThinkingEffort:     string(s.ThinkingEffort),
		LorebookCap:        s.LorebookCap,
		Language:           s.Language,
	}
}

func (s *Server) settingsGet(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settingsUC.Get(r.Context(), userID(r.Context()))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(settings))
}

type settingsUpdateRequest struct {
	ReplyLength    *string `json:"reply_length"`
	ThinkingEffort *string `json:"thinking_effort"`
	LorebookCap    *int    `json:"lorebook_cap"`
	Language       *string `json:"language"`
}

func (s *Server) settingsUpdate(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	upd := usecase.SettingsUpdate{LorebookCap: req.LorebookCap, Language: req.Language}
	if req.ReplyLength != nil {
		v := model.ReplyLength(*req.ReplyLength)
		upd.ReplyLength = &v
	}
	if req.ThinkingEffort != nil {
		v := model.ThinkingEffort(*req.ThinkingEffort)
		upd.ThinkingEffort = &v
	}
	settings, err := s.settingsUC.Update(r.Context(), userID(r.Context()), upd)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(settings))
}

// ---- models ----

// modelList asks the provider for available models using the user's
// pinned (or first eligible) credential.
func (s *Server) modelList(w http.ResponseWriter, r *http.Request) {
	cred, err := s.credUC.Select(r.Context(), userID(r.Context()), nil)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	models, err := s.provider.ListModels(r.Context(), cred.Secret)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data []string `json:"data"`
	}{Data: models})
}
