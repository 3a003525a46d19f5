// Package testutil provides testing utilities and helpers for the crew job API.
package testutil

import (
	"github.com/target/crew-api/internal/domain/model"
)

// CrewRequestBuilder provides a fluent interface for building CrewRequest values in tests.
type CrewRequestBuilder struct {
	req model.CrewRequest
}

// NewCrewRequest creates a builder with one company and one position.
func NewCrewRequest() *CrewRequestBuilder {
	return &CrewRequestBuilder{
		req: model.CrewRequest{
			Companies: []string{"Acme"},
			Positions: []string{"Engineer"},
		},
	}
}

// WithCompanies replaces the companies.
func (b *CrewRequestBuilder) WithCompanies(companies ...string) *CrewRequestBuilder {
	b.req.Companies = companies
	return b
}

// WithPositions replaces the positions.
func (b *CrewRequestBuilder) WithPositions(positions ...string) *CrewRequestBuilder {
	b.req.Positions = positions
	return b
}

// AddCompany appends a company.
func (b *CrewRequestBuilder) AddCompany(company string) *CrewRequestBuilder {
	b.req.Companies = append(b.req.Companies, company)
	return b
}

// AddPosition appends a position.
func (b *CrewRequestBuilder) AddPosition(position string) *CrewRequestBuilder {
	b.req.Positions = append(b.req.Positions, position)
	return b
}

// Build returns a copy of the request.
func (b *CrewRequestBuilder) Build() model.CrewRequest {
	out := model.CrewRequest{
		Companies: append([]string(nil), b.req.Companies...),
		Positions: append([]string(nil), b.req.Positions...),
	}
	return out
}

// BuildPtr returns a pointer to a copy of the request.
func (b *CrewRequestBuilder) BuildPtr() *model.CrewRequest {
	req := b.Build()
	return &req
}

// MultiCompanyRequest returns a request spanning several companies and positions.
func MultiCompanyRequest() model.CrewRequest {
	return NewCrewRequest().
		WithCompanies("Acme", "Globex", "Initech").
		WithPositions("Engineer", "Designer").
		Build()
}
