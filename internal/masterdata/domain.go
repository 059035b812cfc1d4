// Package masterdata holds the parties and materials a business bills
// against. The billing core only needs these as reference lookups; the
// CRUD here is the thin maintenance surface around that.
package masterdata

import "time"

// Party represents a customer/vendor a challan is issued to.
type Party struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	Name       string    `json:"name"`
	Phone      *string   `json:"phone,omitempty"`
	Address    *string   `json:"address,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Material represents a good that appears on challan lines.
type Material struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	Name       string    `json:"name"`
	Unit       *string   `json:"unit,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreatePartyRequest is the party creation payload.
type CreatePartyRequest struct {
	BusinessID string  `json:"business_id" validate:"required"`
	Name       string  `json:"name" validate:"required,max=200"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address    *string `json:"address,omitempty" validate:"omitempty,max=500"`
}

// UpdatePartyRequest mutates an existing party.
type UpdatePartyRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=500"`
}

// CreateMaterialRequest is the material creation payload.
type CreateMaterialRequest struct {
	BusinessID string  `json:"business_id" validate:"required"`
	Name       string  `json:"name" validate:"required,max=200"`
	Unit       *string `json:"unit,omitempty" validate:"omitempty,max=20"`
}

// UpdateMaterialRequest mutates an existing material.
type UpdateMaterialRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Unit *string `json:"unit,omitempty" validate:"omitempty,max=20"`
}
