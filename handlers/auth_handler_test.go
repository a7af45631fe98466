package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defuselab/defusal-tournament/models"
	"github.com/defuselab/defusal-tournament/services"
)

const testJWTSecret = "test-secret"

type stubAuthService struct {
	registerErr error
	loginErr    error
	user        *models.User
}

func (s *stubAuthService) Register(ctx context.Context, input services.RegisterInput) (*models.User, error) {
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return s.user, nil
}

func (s *stubAuthService) Login(ctx context.Context, input services.LoginInput) (*models.User, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return s.user, nil
}

func (s *stubAuthService) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	return s.user, nil
}

func (s *stubAuthService) EnsureOrganizer(ctx context.Context, nickname, email, password string) error {
	return nil
}

func TestRegisterValidation(t *testing.T) {
	handler := NewAuthHandler(&stubAuthService{}, testJWTSecret)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email": "a@b.c"}`))
	rec := httptest.NewRecorder()
	handler.Register(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterConflict(t *testing.T) {
	handler := NewAuthHandler(&stubAuthService{registerErr: services.ErrAuthEmailTaken}, testJWTSecret)

	body := `{"nickname": "wirecutter", "email": "a@b.c", "password": "secret"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Register(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginIssuesToken(t *testing.T) {
	user := &models.User{ID: 7, Nickname: "wirecutter", Email: "a@b.c", Role: models.RolePlayer}
	handler := NewAuthHandler(&stubAuthService{user: user}, testJWTSecret)

	body := `{"email": "a@b.c", "password": "secret"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.NotEmpty(t, response.Token)

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(response.Token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(testJWTSecret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)
	assert.Equal(t, float64(7), claims["user_id"])
	assert.Equal(t, string(models.RolePlayer), claims["role"])
}

func TestLoginInvalidCredentials(t *testing.T) {
	handler := NewAuthHandler(&stubAuthService{loginErr: services.ErrAuthInvalidCredentials}, testJWTSecret)

	body := `{"email": "a@b.c", "password": "wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
