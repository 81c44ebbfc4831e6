// Package model defines the records shared across the repository, service,
// and handler layers.
package model

import "time"

// Function is a saved, reusable script function. Name is unique and doubles
// as the attribute the sandbox exposes under the funcs module, so Code must
// define exactly that function.
type Function struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
