package usecase

import (
	"context"
	"net/http"
	"testing"

	"orderflow/internal/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthUsecaseForTest() (*AuthUsecase, *memStore) {
	store := newMemStore()
	cfg := config.Config{JWTSecret: "test-secret"}
	return NewAuthUsecase(cfg, &memUsers{store}), store
}

func TestRegisterAndLogin(t *testing.T) {
	uc, _ := newAuthUsecaseForTest()

	user, err := uc.Register(context.Background(), RegisterInput{
		Email:    "Alice@Example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "USER", user.Role)

	out, err := uc.Login(context.Background(), LoginInput{
		Email:    "alice@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.AccessToken)
	assert.Equal(t, user.ID, out.User.ID)

	// 発行したトークンが自分のシークレットで検証できる
	token, err := jwt.Parse(out.AccessToken, func(tk *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "USER", claims["role"])
}

func TestRegister_DuplicateEmail(t *testing.T) {
	uc, _ := newAuthUsecaseForTest()

	_, err := uc.Register(context.Background(), RegisterInput{Email: "a@b.com", Password: "password123"})
	require.NoError(t, err)

	_, err = uc.Register(context.Background(), RegisterInput{Email: "a@b.com", Password: "password123"})
	assertHTTPStatus(t, err, http.StatusConflict)
}

func TestRegister_WeakPassword(t *testing.T) {
	uc, _ := newAuthUsecaseForTest()

	_, err := uc.Register(context.Background(), RegisterInput{Email: "a@b.com", Password: "short"})
	assertHTTPStatus(t, err, http.StatusBadRequest)
}

func TestLogin_WrongPassword(t *testing.T) {
	uc, _ := newAuthUsecaseForTest()

	_, err := uc.Register(context.Background(), RegisterInput{Email: "a@b.com", Password: "password123"})
	require.NoError(t, err)

	_, err = uc.Login(context.Background(), LoginInput{Email: "a@b.com", Password: "wrongwrong"})
	assertHTTPStatus(t, err, http.StatusUnauthorized)
}

func TestLogin_UnknownUser(t *testing.T) {
	uc, _ := newAuthUsecaseForTest()

	_, err := uc.Login(context.Background(), LoginInput{Email: "nobody@b.com", Password: "password123"})
	assertHTTPStatus(t, err, http.StatusUnauthorized)
}

func TestMe_InactiveUserForbidden(t *testing.T) {
	uc, store := newAuthUsecaseForTest()

	user, err := uc.Register(context.Background(), RegisterInput{Email: "a@b.com", Password: "password123"})
	require.NoError(t, err)

	u := store.users[user.ID]
	u.IsActive = false
	store.users[user.ID] = u

	_, err = uc.Me(context.Background(), user.ID)
	assertHTTPStatus(t, err, http.StatusForbidden)
}
