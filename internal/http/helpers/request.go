package helpers

import (
	"net"
	"net/http"
	"strings"
)

// BearerToken extrae el token de "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// ClientIP retorna la IP del cliente. Con trustProxy usa el primer valor de
// X-Forwarded-For (solo detrás de un proxy que lo sobreescriba).
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
			return strings.TrimSpace(strings.Split(xf, ",")[0])
		}
		if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
			return xr
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// DeviceType lee X-Device-Type; default "web".
func DeviceType(r *http.Request) string {
	if v := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Device-Type"))); v != "" {
		return v
	}
	return "web"
}

// DeviceID lee X-Device-ID.
func DeviceID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Device-ID"))
}
