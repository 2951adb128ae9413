package report

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/deeptb/api/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group, authMW echo.MiddlewareFunc) {
	grp := g.Group("/report", authMW)
	grp.GET("/count", h.count)
	grp.POST("/create", h.create, auth.RequireRole(auth.RoleDoctor))
	grp.GET("/pending", h.listStatus(StatusPendingDoctor), auth.RequireRole(auth.RoleDoctor))
	grp.GET("/approved", h.listStatus(StatusApproved), auth.RequireRole(auth.RoleDoctor))
	grp.GET("/rejected", h.listStatus(StatusRejected), auth.RequireRole(auth.RoleDoctor))
	grp.POST("/review/:id", h.review, auth.RequireRole(auth.RoleDoctor))
	grp.GET("/:id", h.get)

	// Sits under the roster path, doctor only.
	g.GET("/patient/:id/history", h.patientHistory, authMW, auth.RequireRole(auth.RoleDoctor))
}

func (h *Handler) create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rep, err := h.svc.Create(c.Request().Context(), &in)
	if err != nil {
		return mapReportError(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"success":         true,
		"report":          rep,
		"deletedResultId": rep.OriginalResultID,
		"message":         "Report generated successfully and original result deleted",
	})
}

type reviewRequest struct {
	Approve     bool   `json:"approve"`
	DoctorNotes string `json:"doctorNotes"`
}

func (h *Handler) review(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid report id")
	}
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rep, err := h.svc.Review(c.Request().Context(), id, req.Approve, req.DoctorNotes)
	if err != nil {
		return mapReportError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "report": rep})
}

// get serves a report to the doctor or to the patient it belongs to.
func (h *Handler) get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid report id")
	}
	rep, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapReportError(err)
	}

	ctx := c.Request().Context()
	if auth.RoleFromContext(ctx) != auth.RoleDoctor && auth.UserUUIDFromContext(ctx) != rep.PatientID {
		return echo.NewHTTPError(http.StatusForbidden, "not your report")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "report": rep})
}

func (h *Handler) listStatus(status Status) echo.HandlerFunc {
	return func(c echo.Context) error {
		reports, err := h.svc.ListByStatus(c.Request().Context(), status)
		if err != nil {
			return mapReportError(err)
		}
		if reports == nil {
			reports = []*Report{}
		}
		return c.JSON(http.StatusOK, map[string]any{
			"success": true,
			"reports": reports,
			"count":   len(reports),
		})
	}
}

func (h *Handler) patientHistory(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	patient, reports, stats, err := h.svc.PatientHistory(c.Request().Context(), patientID)
	if err != nil {
		return mapReportError(err)
	}
	if reports == nil {
		reports = []*Report{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Patient history retrieved successfully",
		"patient":     patient,
		"reports":     reports,
		"statistics":  stats,
		"reportCount": stats.TotalReports,
	})
}

func (h *Handler) count(c echo.Context) error {
	count, err := h.svc.Count(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "totalReports": count})
}

func mapReportError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrNoResult):
		return echo.NewHTTPError(http.StatusNotFound, "no screening result found for this patient")
	case errors.Is(err, ErrResultMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, "result does not belong to this patient")
	case errors.Is(err, ErrNotReviewable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUpstream):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	default:
		return err
	}
}
