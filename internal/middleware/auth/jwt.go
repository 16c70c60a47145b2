package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Operator is the authenticated back-office user behind an admin request.
type Operator struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
	Role    string `json:"role"`
}

// Actor is the name recorded on refund approvals and manual matches.
func (o *Operator) Actor() string {
	if o.Email != "" {
		return o.Email
	}
	return o.Subject
}

type contextKey string

const operatorContextKey contextKey = "authenticated_operator"

// JWTConfig holds the configuration for JWT middleware
type JWTConfig struct {
	Secret string
	// Issuer, when set, must match the iss claim.
	Issuer    string
	Logger    *zap.Logger
	SkipPaths []string
}

// JWTMiddleware validates HMAC-signed bearer tokens on operator routes.
func JWTMiddleware(config JWTConfig) echo.MiddlewareFunc {
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if config.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(config.Issuer))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, skipPath := range config.SkipPaths {
				if strings.HasPrefix(path, skipPath) {
					return next(c)
				}
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				config.Logger.Warn("Missing authorization header",
					zap.String("path", path),
					zap.String("method", c.Request().Method))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Authorization header required",
					"code":  "MISSING_AUTH_HEADER",
				})
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				config.Logger.Warn("Invalid authorization header format",
					zap.String("path", path))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Invalid authorization header format. Expected: Bearer <token>",
					"code":  "INVALID_AUTH_FORMAT",
				})
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(config.Secret), nil
			}, parserOpts...)
			if err != nil {
				config.Logger.Warn("JWT validation failed",
					zap.Error(err),
					zap.String("path", path))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Invalid or expired token",
					"code":  "INVALID_TOKEN",
				})
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				config.Logger.Warn("Invalid JWT claims",
					zap.String("path", path))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Invalid token claims",
					"code":  "INVALID_CLAIMS",
				})
			}

			subject, _ := claims.GetSubject()
			email, _ := claims["email"].(string)
			role, _ := claims["role"].(string)
			if subject == "" && email == "" {
				config.Logger.Warn("Token has neither subject nor email",
					zap.String("path", path))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Token does not identify an operator",
					"code":  "INVALID_CLAIMS",
				})
			}

			operator := &Operator{Subject: subject, Email: email, Role: role}
			ctx := context.WithValue(c.Request().Context(), operatorContextKey, operator)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("actor", operator.Actor())

			config.Logger.Debug("Operator authenticated",
				zap.String("actor", operator.Actor()),
				zap.String("role", role),
				zap.String("path", path))

			return next(c)
		}
	}
}

// OperatorFromContext returns the operator stored by JWTMiddleware.
func OperatorFromContext(ctx context.Context) (*Operator, bool) {
	operator, ok := ctx.Value(operatorContextKey).(*Operator)
	return operator, ok && operator != nil
}

// ActorFromContext returns the operator's actor name, or "" when unauthenticated.
func ActorFromContext(ctx context.Context) string {
	if operator, ok := OperatorFromContext(ctx); ok {
		return operator.Actor()
	}
	return ""
}

// RequireOperator returns the operator or a 401 error for the echo error handler.
func RequireOperator(c echo.Context) (*Operator, error) {
	operator, ok := OperatorFromContext(c.Request().Context())
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	return operator, nil
}
