package notes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinnotes/clinnotes/internal/platform/auth"
	"github.com/clinnotes/clinnotes/internal/platform/keyspace"
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
	api.POST("/patients/:patientId/notes", h.CreateNote)
	api.GET("/patients/:patientId/notes", h.ListNotes)
	api.GET("/patients/:patientId/notes/:noteId", h.GetNote)
	api.PUT("/patients/:patientId/notes/:noteId", h.UpdateNote)
	api.DELETE("/patients/:patientId/notes/:noteId", h.DeleteNote)
}

type updateNoteRequest struct {
	UpdateInput
	StudyDate string `json:"study_date,omitempty"`
}

func (h *Handler) CreateNote(c echo.Context) error {
	id, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity required")
	}
	var input CreateInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.svc.Create(c.Request().Context(), id.ClinicID, c.Param("patientId"), id.UserID, id.DisplayName, input)
	if err != nil {
		return noteHTTPError(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) GetNote(c echo.Context) error {
	id, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity required")
	}
	n, err := h.svc.Get(c.Request().Context(), id.ClinicID, c.Param("patientId"), c.Param("noteId"))
	if err != nil {
		return noteHTTPError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) ListNotes(c echo.Context) error {
	id, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity required")
	}
	pg := pagination.FromContext(c)
	opts := ListOptions{
		Limit:         pg.Limit,
		Cursor:        pg.Cursor,
		StudyDateFrom: c.QueryParam("study_date_from"),
		StudyDateTo:   c.QueryParam("study_date_to"),
		Tag:           c.QueryParam("tag"),
	}
	page, err := h.svc.List(c.Request().Context(), id.ClinicID, c.Param("patientId"), opts)
	if err != nil {
		return noteHTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page.Notes, page.HasMore, page.NextCursor))
}

func (h *Handler) UpdateNote(c echo.Context) error {
	id, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity required")
	}
	var req updateNoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.svc.Update(c.Request().Context(), id.ClinicID, c.Param("patientId"), c.Param("noteId"),
		req.StudyDate, id.UserID, id.DisplayName, req.UpdateInput)
	if err != nil {
		return noteHTTPError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) DeleteNote(c echo.Context) error {
	id, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity required")
	}
	err := h.svc.SoftDelete(c.Request().Context(), id.ClinicID, c.Param("patientId"), c.Param("noteId"),
		c.QueryParam("study_date"), id.UserID)
	if err != nil {
		return noteHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// noteHTTPError maps the error taxonomy onto status codes: NotFound to
// 404, version conflicts to 409 with both versions, malformed
// identifiers to 400, store failures to 500 (fail closed), anything
// else to 400 as caller input.
func noteHTTPError(err error) *echo.HTTPError {
	var (
		conflict  *ConflictError
		malformed *keyspace.MalformedKeyError
		storeErr  *kvstore.StoreError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "note not found")
	case errors.As(err, &conflict):
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"message":          "version conflict",
			"expected_version": conflict.Expected,
			"current_version":  conflict.Current,
		})
	case errors.As(err, &malformed):
		return echo.NewHTTPError(http.StatusBadRequest, malformed.Error())
	case errors.As(err, &storeErr):
		return echo.NewHTTPError(http.StatusInternalServerError, "storage unavailable")
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
