// Package portfolio holds the contract/project/installment records every
// other module reads. Revenue attribution always keys off an installment's
// competence month, so the derivation lives here in exactly one place.
package portfolio

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/shared"
)

// CompanyType selects the tax jurisdiction applied to a company's revenue.
type CompanyType string

const (
	CompanyTypeBrazil    CompanyType = "brazil"
	CompanyTypeArgentina CompanyType = "argentina_subsidiary"
)

// Department enumerates the practice areas projects belong to.
type Department string

const (
	DepartmentFinance     Department = "finance"
	DepartmentAccounting  Department = "accounting"
	DepartmentControlling Department = "controlling"
	DepartmentTax         Department = "tax"
	DepartmentAudit       Department = "audit"
	DepartmentMA          Department = "ma"
)

// ValidDepartment reports whether d is a known department.
func ValidDepartment(d Department) bool {
	switch d {
	case DepartmentFinance, DepartmentAccounting, DepartmentControlling,
		DepartmentTax, DepartmentAudit, DepartmentMA:
		return true
	}
	return false
}

// Company is an issuing legal entity.
type Company struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      CompanyType     `json:"type"`
	Currency  shared.Currency `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Contract binds a client engagement to an issuing company.
type Contract struct {
	ID         string     `json:"id"`
	CompanyID  string     `json:"company_id"`
	Code       string     `json:"code"`
	ClientName string     `json:"client_name"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Project carries the current leadership pointer. The pointer reflects the
// most recent unblocked propagation; history lives in the leader package.
type Project struct {
	ID         string     `json:"id"`
	ContractID string     `json:"contract_id"`
	Name       string     `json:"name"`
	Department Department `json:"department"`
	LeaderID   *string    `json:"leader_id,omitempty"`
	LeaderName *string    `json:"leader_name,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// InstallmentType distinguishes recurring billing from one-off charges.
type InstallmentType string

const (
	InstallmentMonthly InstallmentType = "monthly"
	InstallmentOneTime InstallmentType = "one_time"
)

// Installment is one billable slice of a project. TaxPercentage and
// TaxEstimatedValue are the contract-declared estimate; the managerial tax is
// computed elsewhere and the two may legitimately disagree. The leader fields
// are a per-installment attribution snapshot set by propagation,
// independent of the project's current pointer.
type Installment struct {
	ID                string            `json:"id"`
	ProjectID         string            `json:"project_id"`
	PeriodStart       time.Time         `json:"period_start"`
	PeriodEnd         *time.Time        `json:"period_end,omitempty"`
	CompetenceMonth   *shared.YearMonth `json:"competence_month,omitempty"`
	Type              InstallmentType   `json:"type"`
	Value             decimal.Decimal   `json:"value"`
	Currency          shared.Currency   `json:"currency"`
	TaxPercentage     *decimal.Decimal  `json:"tax_percentage,omitempty"`
	TaxEstimatedValue *decimal.Decimal  `json:"tax_estimated_value,omitempty"`
	LeaderID          *string           `json:"leader_id,omitempty"`
	LeaderName        *string           `json:"leader_name,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Competence resolves the accounting period the installment's revenue is
// attributed to, deriving it from periodStart when the explicit field is
// unset. All month keying must go through this method.
func (i Installment) Competence() shared.YearMonth {
	if i.CompetenceMonth != nil && *i.CompetenceMonth != "" {
		return *i.CompetenceMonth
	}
	return shared.YearMonthOf(i.PeriodStart)
}

// InstallmentFilters narrows installment listings.
type InstallmentFilters struct {
	ProjectID  string
	YearMonth  shared.YearMonth
	CompanyID  string
	Department Department
}

var (
	// ErrInstallmentMonthClosed is returned when mutating an installment whose
	// competence month is closed.
	ErrInstallmentMonthClosed = fmt.Errorf("portfolio: installment competence month is closed: %w", shared.ErrStateConflict)
	// ErrInvalidValue is returned when an installment value is not positive.
	ErrInvalidValue = fmt.Errorf("portfolio: installment value must be positive: %w", shared.ErrValidation)
	// ErrActorRequired is returned when a mutation lacks actor identity.
	ErrActorRequired = fmt.Errorf("portfolio: actor required: %w", shared.ErrValidation)
)
