package echo

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/praxima-health/praxis/domain"
	"github.com/praxima-health/praxis/middleware"
	"github.com/praxima-health/praxis/mongodb"
	"github.com/praxima-health/praxis/services"
)

// API holds the HTTP handlers for the practice-management service.
type API struct {
	auth         *services.AuthService
	provisioning *services.ProvisioningService
	patients     *services.PatientService
	stats        *services.StatsService
}

// NewAPI initializes the API with its service dependencies.
func NewAPI(
	auth *services.AuthService,
	provisioning *services.ProvisioningService,
	patients *services.PatientService,
	stats *services.StatsService,
) *API {
	return &API{
		auth:         auth,
		provisioning: provisioning,
		patients:     patients,
		stats:        stats,
	}
}

// RegisterRoutes registers all routes on the echo instance.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", a.HealthzHandler)
	e.POST("/auth/login", a.LoginHandler)

	authed := e.Group("", middleware.RequireSession(a.auth))
	authed.POST("/auth/logout", a.LogoutHandler)
	authed.GET("/me/delegate-status", a.DelegateStatusHandler)
	authed.GET("/me/permissions/:module/:action", a.ValidateOperationHandler)

	owner := authed.Group("/delegates", middleware.RequireOwner())
	owner.POST("", a.ProvisionDelegateHandler)
	owner.GET("", a.ListDelegatesHandler)
	owner.GET("/:id", a.GetDelegateHandler)
	owner.POST("/:id/deactivate", a.DeactivateDelegateHandler)
	owner.POST("/:id/reactivate", a.ReactivateDelegateHandler)
	owner.PUT("/:id/permissions", a.UpdatePermissionsHandler)

	// Route-level permission gates mirror the checks the patient service
	// performs; they reject unauthorized delegates before the handler runs.
	patientRead := middleware.RequirePermission(a.provisioning, domain.ModulePatients, domain.ActionRead)
	patientWrite := middleware.RequirePermission(a.provisioning, domain.ModulePatients, domain.ActionWrite)
	patientView := middleware.RequirePermission(a.provisioning, domain.ModulePatients, domain.ActionViewDetails)

	patients := authed.Group("/patients")
	patients.POST("", a.CreatePatientHandler, patientWrite)
	patients.GET("", a.ListPatientsHandler, patientRead)
	patients.GET("/:id", a.GetPatientHandler, patientRead)
	patients.PUT("/:id", a.UpdatePatientHandler, patientWrite)
	patients.DELETE("/:id", a.DeletePatientHandler, patientWrite)
	patients.POST("/:id/attachments", a.AttachFileHandler, patientWrite)
	// Attachment object keys contain slashes, so they travel as a query
	// parameter rather than a path segment.
	patients.GET("/:id/attachments", a.AttachmentDownloadHandler, patientView)
	patients.DELETE("/:id/attachments", a.RemoveAttachmentHandler, patientWrite)

	authed.GET("/stats/dashboard", a.DashboardStatsHandler, middleware.RequireOwner())
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Code  string `json:"code,omitempty"`
}

// writeError maps domain error kinds onto HTTP statuses.
func writeError(c echo.Context, err error) error {
	var domainErr *domain.Error
	if !errors.As(err, &domainErr) {
		log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled service error")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}

	status := http.StatusInternalServerError
	switch domainErr.Kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindAuthorization:
		status = http.StatusForbidden
	case domain.KindCapacityExceeded:
		status = http.StatusUnprocessableEntity
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindProvider, domain.KindSessionIntegrity:
		status = http.StatusBadGateway
	}
	return c.JSON(status, errorResponse{Error: domainErr.Message, Field: domainErr.Field, Code: domainErr.Code})
}

// HealthzHandler reports liveness, including database reachability.
func (a *API) HealthzHandler(c echo.Context) error {
	if err := mongodb.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "mongo": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginHandler authenticates an owner or delegate and returns a session token.
func (a *API) LoginHandler(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	result, err := a.auth.Login(c.Request().Context(), req.Email, req.Password,
		c.Request().UserAgent(), c.RealIP())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// LogoutHandler revokes the caller's session.
func (a *API) LogoutHandler(c echo.Context) error {
	if err := a.auth.Logout(c.Request().Context(), middleware.SessionID(c)); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type provisionDelegateRequest struct {
	Name        string                    `json:"name"`
	Email       string                    `json:"email"`
	Password    string                    `json:"password"`
	Permissions map[string]map[string]any `json:"permissions,omitempty"`
}

// ProvisionDelegateHandler creates a delegate account for the calling owner.
func (a *API) ProvisionDelegateHandler(c echo.Context) error {
	var req provisionDelegateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	var permissions domain.PermissionMap
	if req.Permissions != nil {
		parsed, err := domain.ParsePermissionMap(req.Permissions)
		if err != nil {
			return writeError(c, err)
		}
		permissions = parsed
	}

	callerID := middleware.AccountID(c)
	result, err := a.provisioning.ProvisionDelegate(c.Request().Context(), callerID, callerID, services.ProvisionDelegateInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		Permissions: permissions,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

// ListDelegatesHandler lists the calling owner's delegates.
func (a *API) ListDelegatesHandler(c echo.Context) error {
	includeInactive := c.QueryParam("include_inactive") == "true"
	delegates, err := a.provisioning.ListDelegates(c.Request().Context(), middleware.AccountID(c), includeInactive)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"delegates": delegates})
}

// GetDelegateHandler returns one of the calling owner's delegates.
func (a *API) GetDelegateHandler(c echo.Context) error {
	delegate, err := a.provisioning.GetDelegateDetails(c.Request().Context(), c.Param("id"), middleware.AccountID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, delegate)
}

// DeactivateDelegateHandler deactivates a delegate account.
func (a *API) DeactivateDelegateHandler(c echo.Context) error {
	if err := a.provisioning.DeactivateDelegate(c.Request().Context(), middleware.AccountID(c), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ReactivateDelegateHandler re-enables a deactivated delegate account.
func (a *API) ReactivateDelegateHandler(c echo.Context) error {
	if err := a.provisioning.ReactivateDelegate(c.Request().Context(), middleware.AccountID(c), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type updatePermissionsRequest struct {
	Permissions map[string]map[string]any `json:"permissions"`
}

// UpdatePermissionsHandler replaces a delegate's permission map.
func (a *API) UpdatePermissionsHandler(c echo.Context) error {
	var req updatePermissionsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	permissions, err := domain.ParsePermissionMap(req.Permissions)
	if err != nil {
		return writeError(c, err)
	}
	callerID := middleware.AccountID(c)
	if err := a.provisioning.UpdatePermissions(c.Request().Context(), callerID, callerID, c.Param("id"), permissions); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DelegateStatusHandler answers whether the caller is a delegate.
func (a *API) DelegateStatusHandler(c echo.Context) error {
	status, err := a.provisioning.CheckCallerIsDelegate(c.Request().Context(), middleware.AccountID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// ValidateOperationHandler answers whether the caller may perform a
// module/action pair.
func (a *API) ValidateOperationHandler(c echo.Context) error {
	check, err := a.provisioning.ValidateDelegateOperation(c.Request().Context(),
		middleware.AccountID(c), domain.Module(c.Param("module")), domain.Action(c.Param("action")))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, check)
}

type patientRequest struct {
	DoctorID  string     `json:"doctor_id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Notes     string     `json:"notes"`
}

// CreatePatientHandler creates a patient record.
func (a *API) CreatePatientHandler(c echo.Context) error {
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	doctorID := req.DoctorID
	if middleware.AccountType(c) == domain.AccountTypeOwner {
		doctorID = middleware.AccountID(c)
	}
	patient, err := a.patients.CreatePatient(c.Request().Context(), middleware.AccountID(c), services.CreatePatientInput{
		DoctorID:  doctorID,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		BirthDate: req.BirthDate,
		Notes:     req.Notes,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, patient)
}

// GetPatientHandler returns a patient record.
func (a *API) GetPatientHandler(c echo.Context) error {
	patient, err := a.patients.GetPatient(c.Request().Context(), middleware.AccountID(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, patient)
}

type updatePatientRequest struct {
	Name      *string    `json:"name,omitempty"`
	Email     *string    `json:"email,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
}

// UpdatePatientHandler applies a partial update to a patient record.
func (a *API) UpdatePatientHandler(c echo.Context) error {
	var req updatePatientRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	patient, err := a.patients.UpdatePatient(c.Request().Context(), middleware.AccountID(c), c.Param("id"), services.UpdatePatientInput{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		BirthDate: req.BirthDate,
		Notes:     req.Notes,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, patient)
}

// DeletePatientHandler removes a patient record and its attachments.
func (a *API) DeletePatientHandler(c echo.Context) error {
	if err := a.patients.DeletePatient(c.Request().Context(), middleware.AccountID(c), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListPatientsHandler returns a page of the doctor's patients.
func (a *API) ListPatientsHandler(c echo.Context) error {
	doctorID := c.QueryParam("doctor_id")
	if middleware.AccountType(c) == domain.AccountTypeOwner {
		doctorID = middleware.AccountID(c)
	}
	limit, offset := pagingParams(c)
	page, err := a.patients.ListPatients(c.Request().Context(), middleware.AccountID(c), doctorID, limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// AttachFileHandler uploads a multipart file and attaches it to the patient.
func (a *API) AttachFileHandler(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "multipart field 'file' is required"})
	}
	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "failed to read uploaded file"})
	}
	defer src.Close()

	file, err := a.patients.AttachFile(c.Request().Context(), middleware.AccountID(c), c.Param("id"),
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), src, fileHeader.Size)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, file)
}

// AttachmentDownloadHandler redirects to a presigned download URL.
func (a *API) AttachmentDownloadHandler(c echo.Context) error {
	url, err := a.patients.AttachmentDownloadURL(c.Request().Context(), middleware.AccountID(c), c.Param("id"), c.QueryParam("key"))
	if err != nil {
		return writeError(c, err)
	}
	return c.Redirect(http.StatusFound, url)
}

// RemoveAttachmentHandler deletes an attachment.
func (a *API) RemoveAttachmentHandler(c echo.Context) error {
	if err := a.patients.RemoveAttachment(c.Request().Context(), middleware.AccountID(c), c.Param("id"), c.QueryParam("key")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DashboardStatsHandler returns the calling owner's dashboard statistics.
func (a *API) DashboardStatsHandler(c echo.Context) error {
	stats, err := a.stats.GetDashboardStats(c.Request().Context(), middleware.AccountID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func pagingParams(c echo.Context) (limit, offset int) {
	limit = 20
	if v := c.QueryParam("limit"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
