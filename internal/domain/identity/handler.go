package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/deeptb/api/internal/platform/auth"
	"github.com/deeptb/api/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public auth endpoints and the protected patient
// roster under the given group. authMW must be the bearer-token middleware.
func (h *Handler) RegisterRoutes(g *echo.Group, authMW echo.MiddlewareFunc) {
	g.POST("/auth/signup", h.signup)
	g.POST("/auth/verify-otp", h.verifyOTP)
	g.POST("/auth/login", h.login)
	g.GET("/auth/profile", h.profile, authMW, auth.RequireRole(auth.RolePatient))

	g.POST("/dr/signup", h.doctorSignup)
	g.POST("/dr/login", h.doctorLogin)
	g.GET("/dr/exists", h.doctorExists)
	g.GET("/dr/profile", h.doctorProfile, authMW, auth.RequireRole(auth.RoleDoctor))
	g.PUT("/dr/profileUpdate", h.doctorProfileUpdate, authMW, auth.RequireRole(auth.RoleDoctor))

	roster := g.Group("/patient", authMW, auth.RequireRole(auth.RoleDoctor))
	roster.GET("", h.listPatients)
	roster.GET("/:id", h.getPatient)
}

func (h *Handler) signup(c echo.Context) error {
	var req SignupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.StartSignup(c.Request().Context(), &req); err != nil {
		return mapIdentityError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "verification code sent to " + req.Email,
	})
}

func (h *Handler) verifyOTP(c echo.Context) error {
	var req VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	patient, token, err := h.svc.VerifyOTP(c.Request().Context(), &req)
	if err != nil {
		return mapIdentityError(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"success": true,
		"token":   token,
		"patient": patient,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	patient, token, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return mapIdentityError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"patient": patient,
	})
}

func (h *Handler) profile(c echo.Context) error {
	id := auth.UserUUIDFromContext(c.Request().Context())
	if id == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}
	patient, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return mapIdentityError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "patient": patient})
}

func (h *Handler) doctorSignup(c echo.Context) error {
	var req DoctorSignupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	doctor, token, err := h.svc.DoctorSignup(c.Request().Context(), &req)
	if err != nil {
		return mapIdentityError(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"success": true,
		"token":   token,
		"doctor":  doctor,
	})
}

func (h *Handler) doctorLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	doctor, token, err := h.svc.DoctorLogin(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return mapIdentityError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"doctor":  doctor,
	})
}

func (h *Handler) doctorExists(c echo.Context) error {
	exists, err := h.svc.DoctorExists(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "exists": exists})
}

func (h *Handler) doctorProfile(c echo.Context) error {
	id := auth.UserUUIDFromContext(c.Request().Context())
	if id == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}
	doctor, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return mapIdentityError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "doctor": doctor})
}

func (h *Handler) doctorProfileUpdate(c echo.Context) error {
	id := auth.UserUUIDFromContext(c.Request().Context())
	if id == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}
	var req DoctorProfileUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	doctor, err := h.svc.UpdateDoctorProfile(c.Request().Context(), id, &req)
	if err != nil {
		return mapIdentityError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"msg":     "Profile updated successfully",
		"doctor":  doctor,
	})
}

func (h *Handler) listPatients(c echo.Context) error {
	p := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, p.Limit, p.Offset))
}

func (h *Handler) getPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	patient, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return mapIdentityError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "patient": patient})
}

func mapIdentityError(err error) error {
	var mismatch *OTPMismatchError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "account not found")
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, "email already registered")
	case errors.Is(err, ErrLicenseTaken):
		return echo.NewHTTPError(http.StatusConflict, "license number already registered")
	case errors.Is(err, ErrDoctorSeatTaken):
		return echo.NewHTTPError(http.StatusConflict, "a doctor account already exists")
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, ErrOTPExpired), errors.Is(err, ErrOTPConsumed), errors.Is(err, ErrOTPAttemptsExceeded):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &mismatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}
