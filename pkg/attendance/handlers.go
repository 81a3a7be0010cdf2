package attendance

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

// Handlers exposes the attendance endpoints.
type Handlers struct {
	service *Service
	logger  *observability.Logger
}

// NewHandlers creates the attendance HTTP handlers.
func NewHandlers(service *Service, logger *observability.Logger) *Handlers {
	return &Handlers{service: service, logger: logger}
}

// RegisterRoutes mounts the attendance routes on the router.
func (h *Handlers) RegisterRoutes(r *mux.Router, guard *middleware.Guard) {
	pr := guard.Require(storage.RolePR)
	admin := guard.Require(storage.RoleAdmin)
	viewer := guard.Require(storage.RolePR, storage.RoleStudent)

	r.Handle("/branch-students",
		pr(http.HandlerFunc(h.BranchStudents))).Methods(http.MethodGet)
	r.Handle("/create",
		pr(http.HandlerFunc(h.Create))).Methods(http.MethodPost)
	r.Handle("/delete",
		pr(http.HandlerFunc(h.Delete))).Methods(http.MethodDelete)

	r.Handle("/branches",
		admin(http.HandlerFunc(h.Branches))).Methods(http.MethodGet)
	r.Handle("/by-branch",
		admin(http.HandlerFunc(h.ByBranch))).Methods(http.MethodPost)
	r.Handle("/update",
		admin(http.HandlerFunc(h.Update))).Methods(http.MethodPut)

	r.Handle("/months",
		viewer(http.HandlerFunc(h.Months))).Methods(http.MethodGet)
	r.Handle("/graph",
		viewer(http.HandlerFunc(h.Graph))).Methods(http.MethodGet)
}

// BranchStudents returns the caller's batch roster as roll-to-name pairs.
func (h *Handlers) BranchStudents(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)

	roster, err := h.service.BranchStudents(r.Context(), claims.RollNumber)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"students": roster})
}

type createRequest struct {
	Title    string   `json:"title"`
	Note     string   `json:"note"`
	Presents []string `json:"presents"`
}

// Create records today's attendance for the caller's branch.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)

	var req createRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Title, "title") ||
		!httputil.RequireNonEmpty(w, req.Note, "note") {
		return
	}
	if req.Presents == nil {
		httputil.WriteBadRequest(w, "presents is required")
		return
	}

	record, err := h.service.Create(r.Context(), claims.RollNumber, req.Title, req.Note, req.Presents)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateDay):
			httputil.WriteErrorMessage(w, http.StatusConflict, err.Error())
		case errors.Is(err, ErrEmptyRoster):
			httputil.WriteBadRequest(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"message":    "Attendance recorded",
		"attendance": record,
	})
}

// Branches lists branches with a record on the requested date.
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

type byBranchRequest struct {
	Branch string `json:"branch"`
	Date   string `json:"date"`
}

// ByBranch returns one branch's record for a date.
func (h *Handlers) ByBranch(w http.ResponseWriter, r *http.Request) {
	var req byBranchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Branch, "branch") ||
		!httputil.RequireNonEmpty(w, req.Date, "date") {
		return
	}

	day, err := time.ParseInLocation(dateLayout, req.Date, time.Local)
	if err != nil {
		httputil.WriteBadRequest(w, "date must be YYYY-MM-DD")
		return
	}

	record, err := h.service.RosterFor(r.Context(), req.Branch, day)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFoundError(w, "no attendance record for that branch and date")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"attendance": record})
}

type updateRequest struct {
	Branch   string   `json:"branch"`
	Date     string   `json:"date"`
	Presents []string `json:"presents"`
}

// Update replaces the presents of an existing record.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Branch, "branch") ||
		!httputil.RequireNonEmpty(w, req.Date, "date") {
		return
	}
	if req.Presents == nil {
		httputil.WriteBadRequest(w, "presents is required")
		return
	}

	day, err := time.ParseInLocation(dateLayout, req.Date, time.Local)
	if err != nil {
		httputil.WriteBadRequest(w, "date must be YYYY-MM-DD")
		return
	}

	record, err := h.service.UpdateRoster(r.Context(), req.Branch, day, req.Presents)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFoundError(w, "no attendance record for that branch and date")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"message":    "Attendance updated",
		"attendance": record,
	})
}

// Delete removes the caller's branch record for the requested date.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)

	day, ok := parseDateParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), claims.RollNumber, day); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFoundError(w, "no attendance record for that date")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]string{"message": "Attendance deleted"})
}

// Months lists the months with data for the caller's batch and branch.
func (h *Handlers) Months(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)

	months, err := h.service.AvailableMonths(r.Context(), claims.RollNumber)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"months": months})
}

// Graph returns one month's per-day attendance summary for the caller.
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

	points, titles, err := h.service.MonthlyGraph(r.Context(), claims.RollNumber, year, month)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"graph":  points,
		"titles": titles,
	})
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
