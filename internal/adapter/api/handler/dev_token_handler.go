package handler

import (
	"github.com/labstack/echo/v4"

	"edulink/internal/domain/repository"
	"edulink/internal/infrastructure/firebase"
	"edulink/pkg/errors"
	"edulink/pkg/response"
)

type DevTokenHandler struct {
	firebaseAuth *firebase.FirebaseAuthClient
	userRepo     repository.UserRepository
}

var devTokenHandler *DevTokenHandler

func NewDevTokenHandler(firebaseAuth *firebase.FirebaseAuthClient, userRepo repository.UserRepository) *DevTokenHandler {
	return &DevTokenHandler{
		firebaseAuth: firebaseAuth,
		userRepo:     userRepo,
	}
}

func SetupDevTokenHandler(firebaseAuth *firebase.FirebaseAuthClient, userRepo repository.UserRepository) {
	devTokenHandler = NewDevTokenHandler(firebaseAuth, userRepo)
}

func GetDevTokenHandler() *DevTokenHandler {
	return devTokenHandler
}

// GenerateStudentToken mints a long-lived token for the first student user.
func (h *DevTokenHandler) GenerateStudentToken(c echo.Context) error {
	return h.generateTokenForRole(c, "student")
}

// GenerateTeacherToken mints a long-lived token for the first teacher user.
func (h *DevTokenHandler) GenerateTeacherToken(c echo.Context) error {
	return h.generateTokenForRole(c, "teacher")
}

func (h *DevTokenHandler) generateTokenForRole(c echo.Context, role string) error {
	users, err := h.userRepo.FindByRole(c.Request().Context(), role, 1)
	if err != nil {
		return response.Error(c, err)
	}
	if len(users) == 0 {
		return response.Error(c, errors.NotFound("User with role "+role, nil))
	}

	token, err := h.firebaseAuth.GenerateLongLivedToken(c.Request().Context(), users[0].ID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"token": token,
		"user": map[string]interface{}{
			"id":       users[0].ID,
			"email":    users[0].Email,
			"username": users[0].Username,
			"role":     users[0].Role,
		},
	})
}
