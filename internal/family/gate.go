package family

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
)

// ErrBedtime es la causa de BedtimeError.
var ErrBedtime = errors.New("access restricted during bedtime hours")

// BedtimeError indica que el acceso cae dentro de la ventana restringida.
type BedtimeError struct {
	BedtimeHour int
	WakeHour    int
}

func (e *BedtimeError) Error() string {
	return fmt.Sprintf("%s (%02d:00-%02d:00)", ErrBedtime.Error(), e.BedtimeHour, e.WakeHour)
}

func (e *BedtimeError) Is(target error) bool { return target == ErrBedtime }

// Subject son los datos de la identidad que evalúa el gate.
type Subject struct {
	IsMinor   bool
	HasParent bool
}

// Gate es la política horaria para menores. Es stateless: no guarda nada,
// solo compara la hora local con la ventana configurada del grupo.
type Gate struct {
	// DefaultLocation se usa cuando el grupo no define timezone.
	DefaultLocation *time.Location
	Now             func() time.Time
}

// NewGate crea un gate; loc nil = UTC.
func NewGate(loc *time.Location, now func() time.Time) *Gate {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{DefaultLocation: loc, Now: now}
}

// Check retorna *BedtimeError si la operación debe denegarse.
// Sin grupo (settings nil) no hay restricción.
func (g *Gate) Check(s Subject, settings *repository.FamilySettings) error {
	if !s.IsMinor || !s.HasParent || settings == nil {
		return nil
	}
	loc := g.DefaultLocation
	if settings.Timezone != "" {
		if l, err := time.LoadLocation(settings.Timezone); err == nil {
			loc = l
		}
	}
	hour := g.Now().In(loc).Hour()
	if InWindow(hour, settings.BedtimeHour, settings.WakeHour) {
		return &BedtimeError{BedtimeHour: settings.BedtimeHour, WakeHour: settings.WakeHour}
	}
	return nil
}

// InWindow reporta si hour ∈ [bedtime, wake). Si bedtime > wake la ventana
// cruza la medianoche; bedtime == wake es una ventana vacía.
func InWindow(hour, bedtime, wake int) bool {
	switch {
	case bedtime == wake:
		return false
	case bedtime < wake:
		return hour >= bedtime && hour < wake
	default:
		return hour >= bedtime || hour < wake
	}
}
