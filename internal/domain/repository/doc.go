// Package repository define los documentos de dominio (Identity, FamilyGroup)
// y los contratos de almacenamiento que los servicios consumen.
//
// Las implementaciones viven en internal/store/adapters/ (memory, pg).
// Todas las mutaciones de un documento pasan por Update(fn), que garantiza
// read-modify-write atómico por documento: lockout, lista de devices y
// miembros de familia nunca se pisan entre requests concurrentes.
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - ErrNotFound / *ConflictError / ErrInvalidInput son los únicos errores de dominio
package repository
