package memory

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"frintab/internal/core"
	"frintab/internal/gateway"
	applog "frintab/internal/log"
)

// BasePath prefixes every route served by NewHandler.
const BasePath = "/api"

const maxBodyBytes = 1 << 20

// NewHandler serves the ledger REST contract from store.
func NewHandler(store *Store) http.Handler {
	h := &handler{store: store}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+BasePath+"/auth/register", h.register)
	mux.HandleFunc("POST "+BasePath+"/auth/login", h.login)
	mux.HandleFunc("GET "+BasePath+"/group/my", h.authed(h.listGroups))
	mux.HandleFunc("POST "+BasePath+"/group/create", h.authed(h.createGroup))
	mux.HandleFunc("POST "+BasePath+"/group/join", h.authed(h.joinGroup))
	mux.HandleFunc("GET "+BasePath+"/group/{id}", h.authed(h.getGroup))
	mux.HandleFunc("GET "+BasePath+"/transaction/{groupId}", h.authed(h.transactionPage))
	mux.HandleFunc("POST "+BasePath+"/transaction", h.authed(h.recordTransaction))
	return mux
}

type handler struct {
	store *Store
}

type authedHandler func(w http.ResponseWriter, r *http.Request, user core.User)

func (h *handler) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		user, err := h.store.UserForToken(token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r, user)
	}
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	user, err := h.store.RegisterUser(body.Name, body.Email, body.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "registered", "user": user})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var creds core.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}
	res, err := h.store.Authenticate(creds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) listGroups(w http.ResponseWriter, r *http.Request, user core.User) {
	writeJSON(w, http.StatusOK, h.store.GroupsFor(user.ID))
}

func (h *handler) createGroup(w http.ResponseWriter, r *http.Request, user core.User) {
	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	g, err := h.store.CreateGroupFor(user.ID, body.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *handler) joinGroup(w http.ResponseWriter, r *http.Request, user core.User) {
	var body struct {
		GroupCode string `json:"groupCode"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	g, err := h.store.JoinGroupFor(user.ID, body.GroupCode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *handler) getGroup(w http.ResponseWriter, r *http.Request, user core.User) {
	g, err := h.store.GroupFor(user.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *handler) transactionPage(w http.ResponseWriter, r *http.Request, user core.User) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", core.DefaultPageLimit)
	p, err := h.store.PageFor(user.ID, r.PathValue("groupId"), page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) recordTransaction(w http.ResponseWriter, r *http.Request, user core.User) {
	var body struct {
		GroupID string          `json:"groupId"`
		Amount  decimal.Decimal `json:"amount"`
		Type    string          `json:"type"`
		Note    string          `json:"note"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	tx, err := h.store.RecordFor(user.ID, gateway.NewTransaction{
		GroupID: body.GroupID,
		Amount:  body.Amount,
		Type:    core.TransactionType(strings.ToUpper(body.Type)),
		Note:    body.Note,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func queryInt(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		// Non-numeric values are rejected by the store's range checks.
		return 0
	}
	return n
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err,
			applog.FieldPath, r.URL.Path)
	}
	writeJSON(w, status, map[string]string{"message": core.UserMessage(err)})
}

// statusFor is the inverse of the REST client's status mapping.
func statusFor(err error) int {
	var e *core.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case core.KindValidation, core.KindConflict:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
