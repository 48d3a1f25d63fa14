// Package devices mantiene la lista acotada de devices de cada identidad.
//
// Las funciones de este archivo son puras sobre []repository.Device; Registry
// las aplica dentro de IdentityRepository.Update.
package devices

import (
	"time"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
)

// DefaultMax es el límite de devices por identidad.
const DefaultMax = 10

// Descriptor describe el cliente que abre sesión.
type Descriptor struct {
	DeviceID   string
	DeviceType types.DeviceType
	UserAgent  string
}

// Upsert registra o refresca el device y lo marca activo. Si la lista supera
// max, descarta el device visto hace más tiempo (empates: el más antiguo en la lista).
// refreshID es el jti del refresh emitido en este login.
func Upsert(list []repository.Device, d Descriptor, now time.Time, refreshID string, max int) []repository.Device {
	if max <= 0 {
		max = DefaultMax
	}
	found := false
	for k := range list {
		if list[k].DeviceID != d.DeviceID {
			continue
		}
		list[k].DeviceType = d.DeviceType
		if d.UserAgent != "" {
			list[k].UserAgent = d.UserAgent
		}
		list[k].Active = true
		list[k].RegisteredAt = now
		list[k].LastSeen = now
		list[k].RefreshJTI = refreshID
		found = true
		break
	}
	if !found {
		list = append(list, repository.Device{
			DeviceID:     d.DeviceID,
			DeviceType:   d.DeviceType,
			UserAgent:    d.UserAgent,
			Active:       true,
			RegisteredAt: now,
			LastSeen:     now,
			RefreshJTI:   refreshID,
		})
	}
	for len(list) > max {
		list = evictOldest(list)
	}
	return list
}

func evictOldest(list []repository.Device) []repository.Device {
	idx := 0
	for k := 1; k < len(list); k++ {
		if list[k].LastSeen.Before(list[idx].LastSeen) {
			idx = k
		}
	}
	return append(list[:idx], list[idx+1:]...)
}

// Revoke desactiva un device. Retorna false si no existe.
func Revoke(list []repository.Device, deviceID string) bool {
	for k := range list {
		if list[k].DeviceID == deviceID {
			list[k].Active = false
			list[k].RefreshJTI = ""
			return true
		}
	}
	return false
}

// RevokeAll desactiva todos los devices y retorna cuántos estaban activos.
func RevokeAll(list []repository.Device) int {
	n := 0
	for k := range list {
		if list[k].Active {
			n++
		}
		list[k].Active = false
		list[k].RefreshJTI = ""
	}
	return n
}

// FindActive retorna el device si existe y está activo.
func FindActive(list []repository.Device, deviceID string) (*repository.Device, bool) {
	for k := range list {
		if list[k].DeviceID == deviceID && list[k].Active {
			return &list[k], true
		}
	}
	return nil, false
}
