package router

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const operatorContextKey = "operator"

// OperatorLoader checks for an operator name in the session and, if
// present, stores it in the request context.
func OperatorLoader() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		operator, ok := session.Get("operator").(string)
		if !ok || operator == "" {
			c.Next()
			return
		}
		c.Set(operatorContextKey, operator)
		c.Next()
	}
}

// AuthRequired gates routes on a logged-in operator.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(operatorContextKey); !exists {
			c.Redirect(http.StatusFound, "/")
			c.Abort()
			return
		}
		c.Next()
	}
}
