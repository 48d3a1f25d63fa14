package helpers

import (
	"net/http"
	"time"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// SetSessionCookies deja los tokens en cookies HttpOnly (solo clientes web).
func SetSessionCookies(w http.ResponseWriter, access, refresh string, accessExp, refreshExp time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookie,
		Value:    access,
		Path:     "/",
		Expires:  accessExp,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    refresh,
		Path:     "/v1/auth",
		Expires:  refreshExp,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookies expira ambas cookies.
func ClearSessionCookies(w http.ResponseWriter, secure bool) {
	for name, path := range map[string]string{AccessCookie: "/", RefreshCookie: "/v1/auth"} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     path,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// CookieValue retorna el valor de la cookie o "".
func CookieValue(r *http.Request, name string) string {
	if c, err := r.Cookie(name); err == nil {
		return c.Value
	}
	return ""
}
