package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/access"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

// StatsReader is implemented by service.StatsService.
type StatsReader interface {
	Stats(ctx context.Context, caller access.Identity) (service.Stats, error)
}

// AdminHandler serves /admin.
type AdminHandler struct {
	Stats StatsReader
}

func NewAdminHandler(s StatsReader) *AdminHandler { return &AdminHandler{Stats: s} }

// GetStats serves GET /admin/stats.
func (h *AdminHandler) GetStats(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	st, err := h.Stats.Stats(ctx, caller(c))
	if err != nil {
		return respondError(c, err)
	}
	byStatus := echo.Map{}
	for k, v := range st.ByStatus {
		byStatus[string(k)] = v
	}
	return c.JSON(http.StatusOK, echo.Map{
		"doctors":            st.Doctors,
		"patients":           st.Patients,
		"appointments":       st.Appointments,
		"byStatus":           byStatus,
		"cancellationsToday": st.CancellationsToday,
	})
}
