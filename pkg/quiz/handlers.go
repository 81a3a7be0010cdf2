package quiz

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/traintrack/traintrack/pkg/httputil"
	"github.com/traintrack/traintrack/pkg/middleware"
	"github.com/traintrack/traintrack/pkg/observability"
	"github.com/traintrack/traintrack/pkg/storage"
)

const dateLayout = "2006-01-02"

// Handlers exposes the quiz endpoints.
type Handlers struct {
	service *Service
	logger  *observability.Logger
}

// NewHandlers creates the quiz HTTP handlers.
func NewHandlers(service *Service, logger *observability.Logger) *Handlers {
	return &Handlers{service: service, logger: logger}
}

// RegisterRoutes mounts the quiz routes on the router.
func (h *Handlers) RegisterRoutes(r *mux.Router, guard *middleware.Guard) {
	pr := guard.Require(storage.RolePR)
	viewer := guard.Require(storage.RolePR, storage.RoleStudent)
	authed := guard.Require()

	r.Handle("/branches",
		pr(http.HandlerFunc(h.Branches))).Methods(http.MethodGet)
	r.Handle("/rolls",
		pr(http.HandlerFunc(h.Rolls))).Methods(http.MethodPost)
	r.Handle("/create",
		pr(http.HandlerFunc(h.Create))).Methods(http.MethodPost)
	r.Handle("/by-date",
		pr(http.HandlerFunc(h.ByDate))).Methods(http.MethodGet)
	r.Handle("/update-marks",
		pr(http.HandlerFunc(h.UpdateMarks))).Methods(http.MethodPut)
	r.Handle("/delete",
		pr(http.HandlerFunc(h.Delete))).Methods(http.MethodDelete)

	r.Handle("/marks",
		authed(http.HandlerFunc(h.Marks))).Methods(http.MethodPost)

	r.Handle("/months",
		viewer(http.HandlerFunc(h.Months))).Methods(http.MethodGet)
	r.Handle("/graph",
		viewer(http.HandlerFunc(h.Graph))).Methods(http.MethodGet)
}

// Branches lists branches eligible for a quiz on the requested date.
func (h *Handlers) Branches(w http.ResponseWriter, r *http.Request) {
	day, ok := parseDateParam(w, r)
	if !ok {
		return
	}

	branches, err := h.service.BranchesOn(r.Context(), day)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"branches": branches})
}

type rollsRequest struct {
	Date     string   `json:"date"`
	Branches []string `json:"branches"`
}

// Rolls returns the students marked present on the date across the given
// branches.
func (h *Handlers) Rolls(w http.ResponseWriter, r *http.Request) {
	var req rollsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Date, "date") {
		return
	}

	day, err := time.ParseInLocation(dateLayout, req.Date, time.Local)
	if err != nil {
		httputil.WriteBadRequest(w, "date must be YYYY-MM-DD")
		return
	}

	present, err := h.service.PresentRolls(r.Context(), day, req.Branches)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoBranches), errors.Is(err, ErrInvalidBranch):
			httputil.WriteBadRequest(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"students": present})
}

type createRequest struct {
	Title      string          `json:"title"`
	Date       string          `json:"date"`
	Branches   []string        `json:"branches"`
	TotalMarks float64         `json:"totalMarks"`
	Marks      storage.MarkSet `json:"marks"`
}

// Create records a quiz's marks.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)

	var req createRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Title, "title") ||
		!httputil.RequireNonEmpty(w, req.Date, "date") {
		return
	}
	if req.Marks == nil {
		httputil.WriteBadRequest(w, "marks is required")
		return
	}

	day, err := time.ParseInLocation(dateLayout, req.Date, time.Local)
	if err != nil {
		httputil.WriteBadRequest(w, "date must be YYYY-MM-DD")
		return
	}

	quiz, err := h.service.Create(r.Context(), claims.RollNumber, req.Title, day, req.Branches, req.TotalMarks, req.Marks)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoBranches),
			errors.Is(err, ErrInvalidBranch),
			errors.Is(err, ErrInvalidTotal):
			httputil.WriteBadRequest(w, err.Error())
		case errors.Is(err, storage.ErrAlreadyExists):
			httputil.WriteErrorMessage(w, http.StatusConflict, "quiz already exists")
		default:
			// Mark validation failures surface here as plain errors.
			httputil.WriteBadRequest(w, err.Error())
		}
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"message": "Quiz recorded",
		"quiz":    quiz,
	})
}

// ByDate lists the caller's quizzes for the requested date.
func (h *Handlers) ByDate(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)

	day, ok := parseDateParam(w, r)
	if !ok {
		return
	}

	quizzes, err := h.service.QuizzesOn(r.Context(), claims.RollNumber, day)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"quizzes": quizzes})
}

type marksRequest struct {
	QuizID string `json:"quizId"`
}

// Marks returns one quiz record by its quiz id.
func (h *Handlers) Marks(w http.ResponseWriter, r *http.Request) {
	var req marksRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.QuizID, "quizId") {
		return
	}

	quiz, err := h.service.Marks(r.Context(), req.QuizID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFoundError(w, "quiz not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"quiz": quiz})
}

type updateMarksRequest struct {
	QuizID string          `json:"quizId"`
	Marks  storage.MarkSet `json:"marks"`
}

// UpdateMarks replaces a quiz's marks.
func (h *Handlers) UpdateMarks(w http.ResponseWriter, r *http.Request) {
	var req updateMarksRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.QuizID, "quizId") {
		return
	}
	if req.Marks == nil {
		httputil.WriteBadRequest(w, "marks is required")
		return
	}

	quiz, err := h.service.UpdateMarks(r.Context(), req.QuizID, req.Marks)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFoundError(w, "quiz not found")
			return
		}
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"message": "Marks updated",
		"quiz":    quiz,
	})
}

// Delete removes one of the caller's quizzes.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)

	quizID := httputil.ParseQueryString(r, "quizId", "")
	if !httputil.RequireNonEmpty(w, quizID, "quizId") {
		return
	}

	if err := h.service.Delete(r.Context(), quizID, claims.RollNumber); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFoundError(w, "quiz not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]string{"message": "Quiz deleted"})
}

// Months lists the months with quizzes for the caller's branch.
func (h *Handlers) Months(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)

	months, err := h.service.AvailableMonths(r.Context(), claims.RollNumber)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"months": months})
}

// Graph returns one month's quiz scores for the caller.
func (h *Handlers) Graph(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)

	year, err := httputil.ParseQueryInt(r, "year", 0)
	if err != nil || year <= 0 {
		httputil.WriteBadRequest(w, "year is required")
		return
	}
	month, err := httputil.ParseQueryInt(r, "month", 0)
	if err != nil || month < 1 || month > 12 {
		httputil.WriteBadRequest(w, "month must be between 1 and 12")
		return
	}

	points, err := h.service.MonthlyGraph(r.Context(), claims.RollNumber, year, month)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"graph": points})
}

// parseDateParam reads a required YYYY-MM-DD "date" query parameter.
func parseDateParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := httputil.ParseQueryString(r, "date", "")
	if raw == "" {
		httputil.WriteBadRequest(w, "date is required")
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(dateLayout, raw, time.Local)
	if err != nil {
		httputil.WriteBadRequest(w, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return day, true
}
