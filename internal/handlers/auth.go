package handlers

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/TheSimpleMango/ImagineFace/internal/config"
)

const loginPage = `<!DOCTYPE html>
<html>
<head><title>FaceTrace Results</title></head>
<body>
  <h1>FaceTrace Results</h1>
  <form method="post" action="/login">
    <label>Operator <input type="text" name="username" autocomplete="username"></label>
    <label>Password <input type="password" name="password" autocomplete="current-password"></label>
    <button type="submit">Log in</button>
  </form>
</body>
</html>`

// AuthHandler guards the results server with the single operator
// account from the configuration file.
type AuthHandler struct {
	log *zap.Logger
}

func NewAuthHandler(log *zap.Logger) *AuthHandler {
	return &AuthHandler{log: log}
}

func (h *AuthHandler) ShowLoginPage(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(loginPage))
}

func (h *AuthHandler) Login(c *gin.Context) {
	session := sessions.Default(c)
	username := c.PostForm("username")
	password := c.PostForm("password")

	srv := config.Conf.Server
	if username != srv.OperatorUser ||
		bcrypt.CompareHashAndPassword([]byte(srv.OperatorBcrypt), []byte(password)) != nil {
		h.log.Warn("Rejected operator login", zap.String("username", username))
		c.String(http.StatusUnauthorized, "Invalid username or password.")
		return
	}

	session.Set("operator", username)
	if err := session.Save(); err != nil {
		h.log.Error("Failed to save session", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to login")
		return
	}

	c.Redirect(http.StatusFound, "/participants")
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		c.String(http.StatusInternalServerError, "Failed to logout")
		return
	}
	c.Redirect(http.StatusFound, "/")
}
