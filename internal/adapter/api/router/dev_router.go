package router

import (
	"github.com/labstack/echo/v4"

	"edulink/internal/adapter/api/handler"
)

func SetupDevRouter(e *echo.Echo, environment string) {
	if environment != "development" {
		return
	}
	devTokenHandler := handler.GetDevTokenHandler()

	e.GET("/_dev/token/student", devTokenHandler.GenerateStudentToken)
	e.GET("/_dev/token/teacher", devTokenHandler.GenerateTeacherToken)
}
