package handler

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/brahman47/breakyourbelljar/content"
)

const (
	previewCookie  = "__bybj_preview"
	previewTTL     = time.Hour
	previewSubject = "preview"
)

// PreviewMode marks the request context as a draft preview when it carries a
// valid preview cookie.
func (h *Handler) PreviewMode(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.inPreview(c) {
			req := c.Request()
			c.SetRequest(req.WithContext(content.WithPreview(req.Context())))
		}
		return next(c)
	}
}

// EnableDraft checks the shared preview secret, sets the preview cookie and
// redirects to the requested post.
func (h *Handler) EnableDraft(c echo.Context) error {
	secret := c.QueryParam("secret")
	if h.PreviewSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.PreviewSecret)) != 1 {
		return c.String(http.StatusUnauthorized, "Invalid token")
	}

	location := "/"
	if slug := c.QueryParam("slug"); slug != "" {
		ctx := content.WithPreview(c.Request().Context())
		post, err := h.Content.PostBySlug(ctx, slug)
		if err != nil {
			return h.contentError(err)
		}
		if post == nil {
			return c.String(http.StatusUnauthorized, "Invalid slug")
		}
		location = post.Path()
	}

	cookie, err := previewCookieFor(h.JWTSecret, time.Now(), h.Environment != "dev")
	if err != nil {
		return err
	}
	c.SetCookie(cookie)
	return c.Redirect(http.StatusTemporaryRedirect, location)
}

func (h *Handler) DisableDraft(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     previewCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
	return c.Redirect(http.StatusTemporaryRedirect, "/")
}

func (h *Handler) inPreview(c echo.Context) bool {
	cookie, err := c.Cookie(previewCookie)
	if err != nil || cookie.Value == "" {
		return false
	}
	return validPreviewToken(cookie.Value, h.JWTSecret)
}

// previewCookieFor signs a preview token. Secure cookies are sent cross site
// so the studio can embed the preview in an iframe.
func previewCookieFor(secret string, now time.Time, secure bool) (*http.Cookie, error) {
	if secret == "" {
		return nil, errors.New("missing secret")
	}
	exp := now.Add(previewTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   previewSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return nil, err
	}

	cookie := &http.Cookie{
		Name:     previewCookie,
		Value:    signed,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	}
	return cookie, nil
}

func validPreviewToken(value, secret string) bool {
	if secret == "" {
		return false
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(token *jwt.Token) (interface{}, error) {
		// SigningMethodHMAC implements the HMAC-SHA family of signing methods.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return false
	}
	return claims.Subject == previewSubject
}
