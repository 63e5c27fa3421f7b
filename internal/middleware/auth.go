package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/model"
)

// TokenCookie 保存访问令牌的 Cookie 名
const TokenCookie = "token"

const (
	ctxUserID = "user_id"
	ctxEmail  = "email"
	ctxRole   = "role"
)

// Claims JWT 声明
type Claims struct {
	UserID string     `json:"userId"`
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// AuthConfig 令牌签发与 Cookie 属性
type AuthConfig struct {
	Secret string
	Expiry time.Duration
	Secure bool
}

// RequireAuth 必须登录中间件
func RequireAuth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := extractClaims(c, cfg.Secret)
		if err == errNoToken {
			abort(c, apperr.Unauthorized("Not authorized to access this route"))
			return
		}
		if err != nil {
			abort(c, apperr.Unauthorized("Invalid Access Token. Please login again"))
			return
		}
		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			abort(c, apperr.Unauthorized("Invalid Access Token. Please login again"))
			return
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxEmail, claims.Email)
		c.Set(ctxRole, claims.Role)

		// 滑动续期：有效期消耗超过一半时签发新令牌
		if shouldRefresh(claims) {
			if token, err := GenerateToken(userID, claims.Email, claims.Role, cfg.Secret, cfg.Expiry); err == nil {
				SetAuthCookie(c, token, cfg.Expiry, cfg.Secure)
			}
		}

		c.Next()
	}
}

// RestrictTo 角色限制，需在 RequireAuth 之后
func RestrictTo(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetActor(c).HasRole(roles...) {
			abort(c, apperr.Forbidden("You are not authorized to access this route"))
			return
		}
		c.Next()
	}
}

type tokenError string

func (e tokenError) Error() string { return string(e) }

const errNoToken = tokenError("no token")

// extractClaims 优先读取 Cookie，其次 Authorization Header
func extractClaims(c *gin.Context, secret string) (*Claims, error) {
	var tokenString string
	if cookie, err := c.Cookie(TokenCookie); err == nil && cookie != "" {
		tokenString = cookie
	} else if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		tokenString = strings.TrimPrefix(h, "Bearer ")
	}
	if tokenString == "" {
		return nil, errNoToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// GetUserID 当前登录用户 ID，未登录返回 uuid.Nil
func GetUserID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ctxUserID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// GetActor 当前用户及角色
func GetActor(c *gin.Context) model.Actor {
	actor := model.Actor{ID: GetUserID(c)}
	if v, ok := c.Get(ctxRole); ok {
		actor.Role, _ = v.(model.Role)
	}
	return actor
}

// GenerateToken 生成 HS256 令牌
func GenerateToken(userID uuid.UUID, email string, role model.Role, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID.String(),
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// SetAuthCookie 写入 HttpOnly、SameSite=Strict 的令牌 Cookie
func SetAuthCookie(c *gin.Context, token string, expiry time.Duration, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(TokenCookie, token, int(expiry.Seconds()), "/", "", secure, true)
}

// ClearAuthCookie 退出登录
func ClearAuthCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(TokenCookie, "", -1, "/", "", secure, true)
}

// shouldRefresh 已消耗总有效期的 50% 以上
func shouldRefresh(claims *Claims) bool {
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return false
	}
	total := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	return time.Since(claims.IssuedAt.Time) > total/2
}
