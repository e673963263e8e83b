package middleware

import (
    "errors"
    "net/http"
    "strconv"
    "strings"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
)

// Context keys set by the JWT middlewares.
const (
    ContextUserID = "user_id"
    ContextRole   = "role"
)

var errNoBearer = errors.New("missing bearer token")

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores its subject (as uint64) and role claims in the context under
// ContextUserID and ContextRole.  Tokens are issued by the external
// identity provider with the shared HS256 secret.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if err := authenticate(c, secret); err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": err.Error()})
            }
            return next(c)
        }
    }
}

// OptionalJWT identifies the caller when a bearer token is present and
// lets the request through anonymously otherwise.  A token that is
// present but invalid is still rejected.
func OptionalJWT(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            err := authenticate(c, secret)
            if err != nil && !errors.Is(err, errNoBearer) {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": err.Error()})
            }
            return next(c)
        }
    }
}

func authenticate(c echo.Context, secret string) error {
    auth := c.Request().Header.Get("Authorization")
    if !strings.HasPrefix(auth, "Bearer ") {
        return errNoBearer
    }
    raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, echo.ErrUnauthorized
        }
        return []byte(secret), nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
    if err != nil || !tok.Valid {
        return errors.New("invalid token")
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return errors.New("invalid claims")
    }
    uid, ok := subjectID(claims["sub"])
    if !ok {
        return errors.New("invalid subject")
    }
    role, _ := claims["role"].(string)

    c.Set(ContextUserID, uid)
    c.Set(ContextRole, role)
    return nil
}

// subjectID accepts the subject as a JSON number or a decimal string.
func subjectID(v any) (uint64, bool) {
    switch t := v.(type) {
    case float64:
        if t <= 0 || t != float64(uint64(t)) {
            return 0, false
        }
        return uint64(t), true
    case string:
        n, err := strconv.ParseUint(t, 10, 64)
        return n, err == nil && n > 0
    }
    return 0, false
}
