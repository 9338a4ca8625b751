package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	ctxPrincipalKey = "principal"
	ctxMemberIDKey  = "member_id"
	ctxRoleKey      = "role"

	KioskKeyHeader = "X-Kiosk-Key"
)

// Principal: IdP が認証した主体。ExternalID をメンバー紐付けの一意キーとして信頼する
type Principal struct {
	ExternalID string
	Email      string
}

// MemberResolver: ExternalID → 登録済みメンバー（未登録は ok=false）
type MemberResolver interface {
	ResolveMember(ctx context.Context, externalID string) (memberID int64, role string, ok bool, err error)
}

type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify: Bearer トークン（HS256）を検証して Principal を返す
func (v *Verifier) Verify(tokenStr string) (Principal, bool) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || token == nil || !token.Valid {
		return Principal{}, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Principal{}, false
	}
	p := Principal{ExternalID: sub}
	if email, ok := claims["email"].(string); ok {
		p.Email = email
	}
	return p, true
}

func bearer(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

// RequireAuth: Authorization: Bearer <token> を検証して context に Principal を詰める
func RequireAuth(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearer(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "missing Authorization header")
			return
		}
		p, ok := v.Verify(tok)
		if !ok {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token")
			return
		}
		c.Set(ctxPrincipalKey, p)
		c.Next()
	}
}

// OptionalAuth: トークンがあれば検証して詰める。なくても通す
// （登録完了は InvalidSession/AlreadyUsed/Expired を先に判定するため）
func OptionalAuth(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok, ok := bearer(c); ok {
			if p, ok := v.Verify(tok); ok {
				c.Set(ctxPrincipalKey, p)
			}
		}
		c.Next()
	}
}

// RequireMember: 登録済みメンバーであること。role が指定されていればそのいずれか
func RequireMember(res MemberResolver, roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{})
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "missing principal")
			return
		}
		id, role, found, err := res.ResolveMember(c.Request.Context(), p.ExternalID)
		if err != nil {
			abort(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "member lookup failed")
			return
		}
		if !found {
			abort(c, http.StatusForbidden, "FORBIDDEN", "not registered")
			return
		}
		if len(roleSet) > 0 {
			if _, allowed := roleSet[role]; !allowed {
				abort(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
				return
			}
		}
		c.Set(ctxMemberIDKey, id)
		c.Set(ctxRoleKey, role)
		c.Next()
	}
}

// RequireKiosk: キオスク端末キー（X-Kiosk-Key）を bcrypt ハッシュと照合
func RequireKiosk(keyHash string) gin.HandlerFunc {
	hash := []byte(keyHash)
	return func(c *gin.Context) {
		key := c.GetHeader(KioskKeyHeader)
		if key == "" {
			// ブラウザの WebSocket はヘッダを付けられないのでクエリも許可
			key = c.Query("key")
		}
		if key == "" || len(hash) == 0 {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "missing kiosk key")
			return
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(key)); err != nil {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid kiosk key")
			return
		}
		c.Next()
	}
}

func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(ctxPrincipalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// MemberIDFrom: RequireMember 通過後のみ有効
func MemberIDFrom(c *gin.Context) int64 {
	return c.GetInt64(ctxMemberIDKey)
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"ok":    false,
		"error": gin.H{"code": code, "message": msg},
	})
}
