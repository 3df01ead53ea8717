package patients

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinnotes/clinnotes/internal/platform/auth"
	"github.com/clinnotes/clinnotes/internal/platform/kvstore"
	"github.com/clinnotes/clinnotes/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/clinics", h.CreateClinic)
	api.GET("/clinic", h.GetClinic)
	api.POST("/patients", h.CreatePatient)
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:patientId", h.GetPatient)
}

type createClinicRequest struct {
	ClinicID string `json:"clinic_id"`
	Name     string `json:"name"`
}

// CreateClinic registers the caller's own clinic; the identity's
// clinic scope must match the requested id.
func (h *Handler) CreateClinic(c echo.Context) error {
	id, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity required")
	}
	var req createClinicRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ClinicID != id.ClinicID {
		return echo.NewHTTPError(http.StatusForbidden, "clinic scope mismatch")
	}
	clinic, err := h.svc.CreateClinic(c.Request().Context(), req.ClinicID, req.Name, id.UserID)
	if err != nil {
		return patientHTTPError(err)
	}
	return c.JSON(http.StatusCreated, clinic)
}

func (h *Handler) GetClinic(c echo.Context) error {
	id, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity required")
	}
	clinic, err := h.svc.GetClinic(c.Request().Context(), id.ClinicID)
	if err != nil {
		return patientHTTPError(err)
	}
	return c.JSON(http.StatusOK, clinic)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	id, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity required")
	}
	var input CreatePatientInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), id.ClinicID, id.UserID, input)
	if err != nil {
		return patientHTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity required")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id.ClinicID, c.Param("patientId"))
	if err != nil {
		return patientHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	id, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity required")
	}
	pg := pagination.FromContext(c)
	page, err := h.svc.ListPatients(c.Request().Context(), id.ClinicID, ListOptions{
		Limit:          pg.Limit,
		AfterPatientID: c.QueryParam("after"),
	})
	if err != nil {
		return patientHTTPError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func patientHTTPError(err error) *echo.HTTPError {
	var storeErr *kvstore.StoreError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrClinicNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "clinic not found")
	case errors.Is(err, ErrAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, "record already exists")
	case errors.As(err, &storeErr):
		return echo.NewHTTPError(http.StatusInternalServerError, "storage unavailable")
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
