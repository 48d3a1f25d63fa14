package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// Field es un alias para no importar zap en cada caller.
type Field = zap.Field

// ===== HTTP =====

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }

// Duration crea un campo para la duración del request.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// Bytes crea un campo para los bytes de respuesta.
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

// ===== Identidad / sesión =====

// UserID identifica la identidad (nunca el login en texto plano).
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// DeviceID identifica el dispositivo de la sesión.
func DeviceID(v string) zap.Field { return zap.String("device_id", v) }

// FamilyID identifica el grupo familiar.
func FamilyID(v string) zap.Field { return zap.String("family_id", v) }

func Role(v string) zap.Field       { return zap.String("role", v) }
func Permission(v string) zap.Field { return zap.String("permission", v) }
func Provider(v string) zap.Field   { return zap.String("provider", v) }

// Reason es el motivo de un rechazo (lockout, token, gate).
func Reason(v string) zap.Field { return zap.String("reason", v) }

// Email loguea la dirección enmascarada: "ana@example.com" → "a…@e….com".
func Email(v string) zap.Field { return zap.String("email", MaskEmail(v)) }

// MaskEmail deja visible solo la primera letra del usuario y del dominio.
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	i := strings.IndexByte(s, '@')
	if i <= 0 {
		if s == "" {
			return ""
		}
		if len(s) <= 3 {
			return "***"
		}
		return s[:1] + "…" + s[len(s)-1:]
	}
	user, dom := s[:i], s[i+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	dparts := strings.Split(dom, ".")
	if len(dparts) > 0 && len(dparts[0]) > 1 {
		dparts[0] = dparts[0][:1] + "…"
	}
	return user + "@" + strings.Join(dparts, ".")
}

// ===== Sistema =====

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }

// Layer: handler, service, repository.
func Layer(v string) zap.Field { return zap.String("layer", v) }

func Err(err error) zap.Field { return zap.Error(err) }

// ===== Genéricos =====

func Count(v int) zap.Field                  { return zap.Int("count", v) }
func String(key, v string) zap.Field         { return zap.String(key, v) }
func Int(key string, v int) zap.Field        { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field      { return zap.Bool(key, v) }
func Time(key string, v time.Time) zap.Field { return zap.Time(key, v) }
func Any(key string, v any) zap.Field        { return zap.Any(key, v) }
