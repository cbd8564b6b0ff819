package patient

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/maternity/internal/platform/auth"
	"github.com/ehr/maternity/internal/platform/fhir"
	"github.com/ehr/maternity/pkg/pagination"
)

const birthdateParam = "birthdate"

var (
	readRoles  = []string{"admin", "clinician", "registrar"}
	writeRoles = []string{"admin", "registrar"}
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(readRoles...))
	readGroup.GET("/patients", h.ListPatients)
	readGroup.GET("/patients/:id", h.GetPatient)

	writeGroup := api.Group("", auth.RequireRole(writeRoles...))
	writeGroup.POST("/patients", h.CreatePatient)
	writeGroup.PUT("/patients/:id", h.UpdatePatient)
	writeGroup.DELETE("/patients/:id", h.DeletePatient)

	fhirGroup.GET("/metadata", h.Metadata)
	fhirRead := fhirGroup.Group("", auth.RequireRole(readRoles...), auth.RequireScope("Patient", "read"))
	fhirRead.GET("/Patient", h.SearchPatientsFHIR)
	fhirRead.GET("/Patient/:id", h.GetPatientFHIR)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fhir.ErrInvalidDateParam), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func httpError(err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(status, err.Error())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// ListPatients handles GET /api/patients. Repeated birthdate values are
// combined with AND.
func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.SearchPatients(c.Request().Context(), c.QueryParams()[birthdateParam], pg)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var d PatientDTO
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.CreatePatient(c.Request().Context(), &d)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set("Location", "/api/patients/"+created.ID.String())
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var d PatientDTO
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdatePatient(c.Request().Context(), id, &d); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- FHIR Endpoints --

func (h *Handler) SearchPatientsFHIR(c echo.Context) error {
	pg := pagination.FromContext(c)
	birthdates := c.QueryParams()[birthdateParam]

	resources, total, err := h.svc.SearchResources(c.Request().Context(), birthdates, pg)
	if err != nil {
		if errors.Is(err, fhir.ErrInvalidDateParam) {
			return c.JSON(http.StatusBadRequest, fhir.InvalidSearchParamOutcome(birthdateParam, err))
		}
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, fhir.InternalErrorOutcome("search failed"))
	}

	query := ""
	if len(birthdates) > 0 {
		query = url.Values{birthdateParam: birthdates}.Encode()
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundleWithLinks(resources, fhir.SearchBundleParams{
		BaseURL:  "/fhir/Patient",
		QueryStr: query,
		Count:    pg.Limit,
		Offset:   pg.Offset,
		Total:    total,
	}))
}

func (h *Handler) GetPatientFHIR(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Patient", c.Param("id")))
	}
	resource, err := h.svc.GetResource(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Patient", c.Param("id")))
	}
	if err != nil {
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, fhir.InternalErrorOutcome("read failed"))
	}
	return c.JSON(http.StatusOK, resource)
}

// Metadata serves the CapabilityStatement for the resources this package
// exposes.
func (h *Handler) Metadata(c echo.Context) error {
	return c.JSON(http.StatusOK, fhir.NewCapabilityStatement("/fhir", []fhir.CSResource{
		fhir.ReadSearchCapability("Patient", fhir.DateSearchParam(birthdateParam)),
	}))
}
