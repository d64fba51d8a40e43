// Package plan defines subscribable plans.
package plan

import (
	"strings"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Plan is a recurring product billed once per calendar month.
type Plan struct {
	types.Entity
	ID          id.PlanID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Price       types.Money `json:"price"`
	Active      bool        `json:"active"`
}

// Input holds the fields accepted when creating a plan.
type Input struct {
	Name        string
	Description string
	Price       types.Money
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Name        *string
	Description *string
	Price       *types.Money
	Active      *bool
}

// New validates in and returns an active plan. When currency is non-empty
// the price must be expressed in it.
func New(in Input, currency string, now time.Time) (*Plan, error) {
	p := &Plan{
		Entity:      types.NewEntity(now),
		ID:          id.NewPlanID(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Active:      true,
	}
	if err := p.Validate(currency); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the name and price.
func (p *Plan) Validate(currency string) error {
	if p.Name == "" {
		return types.Invalid("name", "must not be empty")
	}
	return types.RequirePositive("price", p.Price, currency)
}

// Apply returns a copy of p with the patch merged in. p is not modified.
func (p *Plan) Apply(patch Patch, currency string, now time.Time) (*Plan, error) {
	next := *p
	if patch.Name != nil {
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.Price != nil {
		next.Price = *patch.Price
	}
	if patch.Active != nil {
		next.Active = *patch.Active
	}
	if err := next.Validate(currency); err != nil {
		return nil, err
	}
	next.Touch(now)
	return &next, nil
}
