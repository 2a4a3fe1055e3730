package entity

import (
	"sync"
	"time"
)

// UDTypePB is the versioned serializable user-defined-type payload (§3).
type UDTypePB struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	NamespaceID string    `json:"namespace_id"`
	FieldNames  []string  `json:"field_names"`
	FieldTypes  []string  `json:"field_types"` // may reference other UDType ids
	CreatedAt   time.Time `json:"created_at"`
}

// EntityKind names the SysCatalog bucket a UDTypePB is stored under.
func (u *UDTypePB) EntityKind() string { return "udtypes" }

// EntityID is the type's catalog id, used as the SysCatalog row key.
func (u *UDTypePB) EntityID() string { return u.ID }

func (u *UDTypePB) Clone() *UDTypePB {
	if u == nil {
		return nil
	}
	cp := *u
	cp.FieldNames = append([]string(nil), u.FieldNames...)
	cp.FieldTypes = append([]string(nil), u.FieldTypes...)
	return &cp
}

// UDTypeInfo is the CoW wrapper around UDTypePB.
type UDTypeInfo struct {
	mu        sync.RWMutex
	committed *UDTypePB
	dirty     *UDTypePB
}

func NewUDTypeInfo(pb *UDTypePB) *UDTypeInfo { return &UDTypeInfo{committed: pb} }

func (u *UDTypeInfo) LockForRead() *UDTypePB { u.mu.RLock(); defer u.mu.RUnlock(); return u.committed }

func (u *UDTypeInfo) LockForWrite() *UDTypePB {
	u.mu.Lock()
	u.dirty = u.committed.Clone()
	return u.dirty
}

func (u *UDTypeInfo) Commit()        { u.committed = u.dirty; u.dirty = nil; u.mu.Unlock() }
func (u *UDTypeInfo) AbortMutation() { u.dirty = nil; u.mu.Unlock() }

// ReferencesType reports whether this UDType embeds the given type id in
// any of its fields (§4.5 DeleteUDType must reject such references).
func (u *UDTypeInfo) ReferencesType(typeID string) bool {
	pb := u.LockForRead()
	for _, ft := range pb.FieldTypes {
		if ft == typeID {
			return true
		}
	}
	return false
}
