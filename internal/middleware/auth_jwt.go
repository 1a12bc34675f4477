package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"marketplace/internal/domain/model"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey     = "user_id"     // int64
	CtxUserRoleKey   = "user_role"   // string
	CtxProducerIDKey = "producer_id" // int64（PRODUCERのときだけ）
)

// bearerAuth用のJWT検証ミドルウェア。発行は外部の認証サービス。
func AuthJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//Authorizationヘッダを取得
			authz := c.Request().Header.Get("Authorization")
			if authz == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("Unauthorized", "unauthorized"))
			}

			//Bearer形式か確認してtokenを抜く
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return c.JSON(http.StatusUnauthorized, errorJSON("Unauthorized", "unauthorized"))
			}
			rawToken := strings.TrimSpace(parts[1])
			if rawToken == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("Unauthorized", "unauthorized"))
			}

			//JWTをパースして検証する
			token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
				if t.Method != jwt.SigningMethodHS256 {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err != nil || token == nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, errorJSON("Unauthorized", "unauthorized"))
			}

			//claimsを取り出す
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("Unauthorized", "unauthorized"))
			}

			//user_idを取り出す
			userID, err := parseID(claims["sub"])
			if err != nil || userID <= 0 {
				return c.JSON(http.StatusUnauthorized, errorJSON("Unauthorized", "unauthorized"))
			}

			//roleを取り出す（CLIENT/PRODUCER/ADMIN）
			role, ok := parseRole(claims["role"])
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("Unauthorized", "unauthorized"))
			}

			//producer_idは任意
			if raw, exists := claims["producer_id"]; exists && raw != nil {
				pid, err := parseID(raw)
				if err != nil || pid <= 0 {
					return c.JSON(http.StatusUnauthorized, errorJSON("Unauthorized", "unauthorized"))
				}
				c.Set(CtxProducerIDKey, pid)
			}

			//contextへ保存
			c.Set(CtxUserIDKey, userID)
			c.Set(CtxUserRoleKey, string(role))

			return next(c)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func errorJSON(kind string, msg string) errorResponse {
	return errorResponse{Error: msg, Kind: kind}
}

// sub/producer_idをint64に変換する
func parseID(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, errors.New("invalid id")
	}
}

func parseRole(v interface{}) (model.Role, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	switch r := model.Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case model.RoleClient, model.RoleProducer, model.RoleAdmin:
		return r, true
	}
	return "", false
}
