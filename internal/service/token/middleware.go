package token

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/beanline/coffee_shop/internal/models"
)

// CreateCookie builds the auth cookies the way every handler sets them.
func CreateCookie(name, value, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func setUserContext(c echo.Context, claims jwt.MapClaims) {
	c.Set("userID", uint(claims["sub"].(float64)))
	if role, ok := claims["role"].(string); ok {
		c.Set("role", role)
	}
}

// UserID returns the authenticated user id placed by the middleware, or
// false for anonymous requests.
func UserID(c echo.Context) (uint, bool) {
	id, ok := c.Get("userID").(uint)
	return id, ok
}

// AutoRefresh authenticates the request from the access cookie, rotating an
// expired access token via the refresh cookie transparently.
func (t *Service) AutoRefresh(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		asCookie, err := c.Cookie("accessToken")
		if err == nil {
			parsed, perr := jwt.Parse(asCookie.Value, func(j *jwt.Token) (interface{}, error) {
				return t.JWTSecret, nil
			})
			if perr == nil && parsed.Valid {
				setUserContext(c, parsed.Claims.(jwt.MapClaims))
				return next(c)
			}
			if !errors.Is(perr, jwt.ErrTokenExpired) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}
		}

		rfCookie, err := c.Cookie("refreshToken")
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
		}
		newAccess, newRefresh, claims, err := t.Rotate(rfCookie.Value)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "cannot rotate token: "+err.Error())
		}

		c.SetCookie(CreateCookie("accessToken", newAccess, "/", time.Now().Add(AccessTTL)))
		c.SetCookie(CreateCookie("refreshToken", newRefresh, "/", time.Now().Add(RefreshTTL)))

		setUserContext(c, claims)
		return next(c)
	}
}

// RequireRole gates a route group on the user's stored role. The role claim
// in the token is not trusted on its own: the profile row is re-read so a
// demoted account loses access as soon as its role changes.
func (t *Service) RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return t.AutoRefresh(func(c echo.Context) error {
			userID, ok := UserID(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}

			var user models.User
			if err := t.DB.First(&user, userID).Error; err != nil {
				return echo.NewHTTPError(http.StatusForbidden, "profile not found")
			}
			for _, r := range roles {
				if user.Role == r {
					c.Set("role", user.Role)
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
		})
	}
}

// OptionalAuth resolves identity when the cookies are present but lets
// anonymous requests through; the cart routes serve both.
func (t *Service) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := c.Cookie("accessToken"); err != nil {
			if _, err := c.Cookie("refreshToken"); err != nil {
				return next(c)
			}
		}
		return t.AutoRefresh(next)(c)
	}
}
