package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sdrc-devforce/devforce/internal/api"
	"github.com/sdrc-devforce/devforce/internal/requestid"
)

// maxBodyBytes bounds a chat request body.
const maxBodyBytes = 1 << 20

// MsgBodyTooLarge answers a body over maxBodyBytes.
const MsgBodyTooLarge = "request body too large"

type Handler struct {
	svc         *Service
	validate    *validator.Validate
	exposeError bool
}

// NewHandler creates the HTTP boundary for svc. With exposeError set,
// generation failures carry the underlying error as "detail".
func NewHandler(svc *Service, exposeError bool) *Handler {
	v := validator.New()
	_ = v.RegisterValidation("sessionid", validateSessionID)
	return &Handler{
		svc:         svc,
		validate:    v,
		exposeError: exposeError,
	}
}

// rawRequest defers field decoding so a wrongly typed field can be
// reported with its own message.
type rawRequest struct {
	Message             json.RawMessage `json:"message"`
	ConversationHistory json.RawMessage `json:"conversationHistory"`
}

// Submit handles POST /submit and POST /api/v1/chat.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, inputErr := h.decodeRequest(body)
	if inputErr != nil {
		api.HandleError(w, api.NewBadRequestError(inputErr.Message))
		return
	}

	reply, err := h.svc.Reply(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Write(w, http.StatusOK, reply)
}

// SessionMessage handles POST /api/v1/sessions/{sessionID}/messages.
func (h *Handler) SessionMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.validate.Var(sessionID, "sessionid"); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid session id"))
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var raw rawRequest
	if err := decodeBody(body, &raw); err != nil {
		api.HandleError(w, api.NewBadRequestError(MsgInvalidMessage))
		return
	}
	var req SessionRequest
	if err := decodeString(raw.Message, &req.Message); err != nil {
		api.HandleError(w, api.NewBadRequestError(MsgInvalidMessage))
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewBadRequestError(MsgInvalidMessage))
		return
	}

	reply, err := h.svc.ReplyInSession(r.Context(), sessionID, req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Write(w, http.StatusOK, reply)
}

// ClearSession handles DELETE /api/v1/sessions/{sessionID}.
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.validate.Var(sessionID, "sessionid"); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid session id"))
		return
	}

	if err := h.svc.ClearSession(r.Context(), sessionID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeRequest(body []byte) (Request, *InputError) {
	var req Request
	var raw rawRequest
	if err := decodeBody(body, &raw); err != nil {
		return req, invalidMessage()
	}

	if err := decodeString(raw.Message, &req.Message); err != nil {
		return req, invalidMessage()
	}
	req.Message = strings.TrimSpace(req.Message)

	if len(raw.ConversationHistory) > 0 && !isNull(raw.ConversationHistory) {
		if err := json.Unmarshal(raw.ConversationHistory, &req.ConversationHistory); err != nil {
			return req, invalidHistory()
		}
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].StructField() != "Message" {
			return req, invalidHistory()
		}
		return req, invalidMessage()
	}
	return req, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var inputErr *InputError
	var genErr *GenerationError
	switch {
	case errors.As(err, &inputErr):
		api.HandleError(w, api.NewBadRequestError(inputErr.Message))
	case errors.Is(err, ErrSessionsDisabled):
		api.HandleError(w, api.NewServiceUnavailableError(err.Error()))
	case errors.As(err, &genErr):
		slog.Error("generating reply", "error", err, "request_id", requestid.From(r.Context()))
		detail := ""
		if h.exposeError {
			detail = genErr.Err.Error()
		}
		api.JSONErrorDetail(w, http.StatusInternalServerError, MsgGenerationFailed, detail)
	default:
		slog.Error("handling chat request", "error", err, "request_id", requestid.From(r.Context()))
		api.JSONErrorMessage(w, http.StatusInternalServerError, MsgGenerationFailed)
	}
}

// readBody reads at most maxBodyBytes of the request body. When it
// returns false the error response has already been written.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.JSONErrorMessage(w, http.StatusRequestEntityTooLarge, MsgBodyTooLarge)
			return nil, false
		}
		api.HandleError(w, api.NewBadRequestError(MsgInvalidMessage))
		return nil, false
	}
	return body, true
}

func decodeBody(body []byte, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

// decodeString requires raw to be a JSON string. A missing field leaves
// dst empty.
func decodeString(raw json.RawMessage, dst *string) error {
	if len(raw) == 0 {
		return nil
	}
	if isNull(raw) {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func validateSessionID(fl validator.FieldLevel) bool {
	return sessionIDPattern.MatchString(fl.Field().String())
}
