package screening

import (
	"errors"
	"io"
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
	g.POST("/tb/predict", h.predict, authMW, auth.RequireRole(auth.RolePatient))

	results := g.Group("/result", authMW)
	results.GET("/history", h.history, auth.RequireRole(auth.RolePatient))
	results.GET("/count", h.count, auth.RequireRole(auth.RolePatient))
	results.GET("/patient/:id", h.patientResults, auth.RequireRole(auth.RoleDoctor))
}

// predict accepts the image either as multipart form data under key "file" or
// "image", or as a base64 string in a JSON body.
func (h *Handler) predict(c echo.Context) error {
	patientID := auth.UserUUIDFromContext(c.Request().Context())
	if patientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	in, err := readImage(c)
	if err != nil {
		return err
	}

	result, err := h.svc.Predict(c.Request().Context(), patientID, in)
	if err != nil {
		return mapScreeningError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":        true,
		"resultId":       result.ID,
		"imageUrl":       result.ImageURL,
		"label":          result.Label,
		"confidence":     result.Confidence,
		"raw_prediction": result.RawPrediction,
		"threshold_used": result.ThresholdUsed,
		"message":        "Prediction completed successfully",
	})
}

func readImage(c echo.Context) (*PredictInput, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		fh, err = c.FormFile("image")
	}
	if err == nil {
		f, err := fh.Open()
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
		}
		return &PredictInput{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		}, nil
	}

	var body struct {
		Image string `json:"image"`
	}
	if err := c.Bind(&body); err != nil || body.Image == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest,
			"no image provided: send form-data with key 'file' or 'image', or base64 in a JSON body")
	}
	data, err := DecodeBase64Image(body.Image)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return &PredictInput{FileName: "image.jpg", ContentType: "image/jpeg", Data: data}, nil
}

func (h *Handler) history(c echo.Context) error {
	patientID := auth.UserUUIDFromContext(c.Request().Context())
	results, err := h.svc.History(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	if results == nil {
		results = []*Result{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"results": results,
		"count":   len(results),
	})
}

func (h *Handler) count(c echo.Context) error {
	patientID := auth.UserUUIDFromContext(c.Request().Context())
	count, err := h.svc.Count(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"totalReports": count,
	})
}

func (h *Handler) patientResults(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	results, err := h.svc.History(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	if results == nil {
		results = []*Result{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"results": results,
		"count":   len(results),
	})
}

func mapScreeningError(c echo.Context, err error) error {
	var dup *DuplicateResultError
	switch {
	case errors.As(err, &dup):
		body := map[string]any{
			"success": false,
			"error":   "You already have a test result in the system. Please wait for doctor review or contact support.",
		}
		// The id can be unknown when the blocking row could not be read back.
		if dup.ExistingID != uuid.Nil {
			body["existingResultId"] = dup.ExistingID
		}
		return c.JSON(http.StatusTooManyRequests, body)
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUpstream):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	default:
		return err
	}
}
