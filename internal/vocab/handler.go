package vocab

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"toeicprep/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

const maxImportBytes = 8 << 20

type Handler struct {
	svc *Service
}

type createDeckRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type addCardRequest struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
	Example    string `json:"example"`
}

type gradeQuizRequest struct {
	Answers []QuizAnswer `json:"answers"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListDecks(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListDecks(r.Context())
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) CreateDeck(w http.ResponseWriter, r *http.Request) {
	var req createDeckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.svc.CreateDeck(r.Context(), req.Title, req.Description)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			apiresp.WriteError(w, r, http.StatusBadRequest, "title is required")
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, item)
}

func (h *Handler) DeleteDeck(w http.ResponseWriter, r *http.Request) {
	deckID, ok := deckIDParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteDeck(r.Context(), deckID); err != nil {
		if errors.Is(err, ErrDeckNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	deckID, ok := deckIDParam(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListCards(r.Context(), deckID)
	if err != nil {
		if errors.Is(err, ErrDeckNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) AddCard(w http.ResponseWriter, r *http.Request) {
	deckID, ok := deckIDParam(w, r)
	if !ok {
		return
	}
	var req addCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.svc.AddCard(r.Context(), deckID, req.Term, req.Definition, req.Example)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			apiresp.WriteError(w, r, http.StatusBadRequest, "term and definition are required")
		case errors.Is(err, ErrDeckNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, item)
}

func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	cardID, err := strconv.ParseInt(chi.URLParam(r, "cardID"), 10, 64)
	if err != nil || cardID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid card id")
		return
	}
	if err := h.svc.DeleteCard(r.Context(), cardID); err != nil {
		if errors.Is(err, ErrCardNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) DrawQuiz(w http.ResponseWriter, r *http.Request) {
	deckID, ok := deckIDParam(w, r)
	if !ok {
		return
	}
	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			apiresp.WriteError(w, r, http.StatusBadRequest, "invalid question count")
			return
		}
		n = parsed
	}
	items, err := h.svc.Draw(r.Context(), deckID, n)
	if err != nil {
		switch {
		case errors.Is(err, ErrDeckNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrDeckTooSmall):
			apiresp.WriteError(w, r, http.StatusUnprocessableEntity, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) GradeQuiz(w http.ResponseWriter, r *http.Request) {
	deckID, ok := deckIDParam(w, r)
	if !ok {
		return
	}
	var req gradeQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	report, err := h.svc.Grade(r.Context(), deckID, req.Answers)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyQuiz):
			apiresp.WriteError(w, r, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ErrCardNotFound):
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrDeckNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, report)
}

func (h *Handler) ExportDeck(w http.ResponseWriter, r *http.Request) {
	deckID, ok := deckIDParam(w, r)
	if !ok {
		return
	}
	data, err := h.svc.ExportDeckExcel(r.Context(), deckID)
	if err != nil {
		if errors.Is(err, ErrDeckNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=deck_%d.xlsx", deckID))
	_, _ = w.Write(data)
}

func (h *Handler) ImportDeck(w http.ResponseWriter, r *http.Request) {
	deckID, ok := deckIDParam(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	report, err := h.svc.ImportDeckExcel(r.Context(), deckID, file)
	if err != nil {
		if errors.Is(err, ErrDeckNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, report)
}

func deckIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	deckID, err := strconv.ParseInt(chi.URLParam(r, "deckID"), 10, 64)
	if err != nil || deckID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid deck id")
		return 0, false
	}
	return deckID, true
}
