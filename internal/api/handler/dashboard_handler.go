package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// DashboardHandler renders protected areas. It runs behind the access guard
// and only reads the session the guard admitted.
type DashboardHandler struct{}

func NewDashboardHandler() *DashboardHandler {
	return &DashboardHandler{}
}

// Area returns the handler for one dashboard area.
//
// @Summary      Dashboard
// @Tags         dashboard
// @Produce      json
// @Success      200  {object}  dashboardResponse
// @Success      302
// @Failure      503
// @Router       /client/dashboard [get]
// @Router       /expert/dashboard [get]
// @Router       /admin/dashboard [get]
// @Router       /account [get]
func (h *DashboardHandler) Area(area string) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := ctxSession(c)
		if err != nil {
			return err
		}
		user := sess.User
		return c.JSON(http.StatusOK, dashboardResponse{Area: area, User: &user})
	}
}
