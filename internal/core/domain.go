package core

import (
	"strings"
	"time"
)

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

const (
	SubTypeNone        SubType = "none"
	SubTypeLoan        SubType = "loan"
	SubTypeRepaid      SubType = "repaid"
	SubTypeAsset       SubType = "asset"
	SubTypeAssetCost   SubType = "assetCost"
	SubTypeAssetIncome SubType = "assetIncome"
	SubTypeFuel        SubType = "fuel"
)

// Families group subtypes that share a details shape.
const (
	FamilyPlain Family = iota
	FamilyLoan
	FamilyAsset
	FamilyFuel
)

const (
	LoanRemaining LoanStatusText = "remaining"
	LoanPartial   LoanStatusText = "partial"
	LoanCompleted LoanStatusText = "completed"
)

type (
	TxType         string
	SubType        string
	Family         int
	LoanStatusText string

	Money struct {
		Cents int64
	}

	Category struct {
		ID       int64   `json:"id"`
		Name     string  `json:"name"`
		Icon     string  `json:"icon"`
		Type     TxType  `json:"type"`
		SubType  SubType `json:"subType"`
		Order    int     `json:"order"`
		Budget   *Money  `json:"budget,omitempty"` // monthly ceiling (expense) or goal (income/asset)
		IsCustom bool    `json:"isCustom"`
		Version  int     `json:"version"`
	}

	// BudgetChange is one entry of a category's budget history.
	BudgetChange struct {
		CategoryID    int64     `json:"categoryId"`
		Budget        *Money    `json:"budget"`
		EffectiveFrom time.Time `json:"effectiveFrom"`
	}

	// Transaction is a tagged union keyed by SubType. Details is nil for
	// SubTypeNone and holds the family-specific record otherwise.
	Transaction struct {
		ID         int64
		Type       TxType
		SubType    SubType
		Amount     Money
		CategoryID int64
		Memo       string
		Date       time.Time
		Details    Details
	}

	LoanDetails struct {
		PersonName  string
		LoanCharges Money
		LoanDate    time.Time
		DueDate     *time.Time
		ParentID    *int64
		// Status is a display hint persisted by older clients. Authoritative
		// status is always recomputed from the linkage graph.
		Status LoanStatusText
	}

	AssetDetails struct {
		AssetName       string
		TransactionDate time.Time
		Quantity        float64
		MeasurementUnit string
		CurrentValue    Money
		ParentID        *int64
	}

	FuelDetails struct {
		OdometerReading float64
		FuelQuantity    float64
		FuelType        string
	}
)

// Details is implemented only by the family records in this package.
type Details interface {
	family() Family
}

func (*LoanDetails) family() Family  { return FamilyLoan }
func (*AssetDetails) family() Family { return FamilyAsset }
func (*FuelDetails) family() Family  { return FamilyFuel }

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	switch t {
	case Income, Expense:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known subtype.
func (s SubType) Valid() bool {
	switch s {
	case SubTypeNone, SubTypeLoan, SubTypeRepaid, SubTypeAsset, SubTypeAssetCost, SubTypeAssetIncome, SubTypeFuel:
		return true
	default:
		return false
	}
}

// Family maps a subtype to the details shape it carries.
func (s SubType) Family() Family {
	switch s {
	case SubTypeLoan, SubTypeRepaid:
		return FamilyLoan
	case SubTypeAsset, SubTypeAssetCost, SubTypeAssetIncome:
		return FamilyAsset
	case SubTypeFuel:
		return FamilyFuel
	default:
		return FamilyPlain
	}
}

// AllSubTypes lists every subtype in declaration order.
func AllSubTypes() []SubType {
	return []SubType{SubTypeNone, SubTypeLoan, SubTypeRepaid, SubTypeAsset, SubTypeAssetCost, SubTypeAssetIncome, SubTypeFuel}
}

// Loan returns the loan details when t belongs to the loan family.
func (t Transaction) Loan() (*LoanDetails, bool) {
	d, ok := t.Details.(*LoanDetails)
	return d, ok && d != nil
}

// Asset returns the asset details when t belongs to the asset family.
func (t Transaction) Asset() (*AssetDetails, bool) {
	d, ok := t.Details.(*AssetDetails)
	return d, ok && d != nil
}

// Fuel returns the fuel details when t is a fuel fill.
func (t Transaction) Fuel() (*FuelDetails, bool) {
	d, ok := t.Details.(*FuelDetails)
	return d, ok && d != nil
}

// ParentID returns the soft foreign key of a child transaction.
func (t Transaction) ParentID() (int64, bool) {
	switch d := t.Details.(type) {
	case *LoanDetails:
		if d != nil && d.ParentID != nil {
			return *d.ParentID, true
		}
	case *AssetDetails:
		if d != nil && d.ParentID != nil {
			return *d.ParentID, true
		}
	case *FuelDetails, nil:
	}
	return 0, false
}

// IsRoot reports whether t originates a loan or asset (no parent).
func (t Transaction) IsRoot() bool {
	_, ok := t.ParentID()
	return !ok
}

// Clone returns a deep copy so stores never share mutable details.
func (t Transaction) Clone() Transaction {
	out := t
	switch d := t.Details.(type) {
	case *LoanDetails:
		if d != nil {
			c := *d
			if d.DueDate != nil {
				due := *d.DueDate
				c.DueDate = &due
			}
			if d.ParentID != nil {
				pid := *d.ParentID
				c.ParentID = &pid
			}
			out.Details = &c
		}
	case *AssetDetails:
		if d != nil {
			c := *d
			if d.ParentID != nil {
				pid := *d.ParentID
				c.ParentID = &pid
			}
			out.Details = &c
		}
	case *FuelDetails:
		if d != nil {
			c := *d
			out.Details = &c
		}
	}
	return out
}

// Validate checks the record in isolation. Parent existence is checked by
// the ledger, which can see the rest of the store.
func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return &ValidationError{Field: "type", Message: "must be income or expense"}
	}
	if !t.SubType.Valid() {
		return &ValidationError{Field: "subType", Message: "unknown subtype " + string(t.SubType)}
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.CategoryID <= 0 {
		return &ValidationError{Field: "categoryId", Message: "is required"}
	}
	if t.Date.IsZero() {
		return &ValidationError{Field: "date", Message: "is required"}
	}
	if len(t.Memo) > 500 {
		return &ValidationError{Field: "memo", Message: "too long (max 500 characters)"}
	}

	switch t.SubType.Family() {
	case FamilyPlain:
		if t.Details != nil {
			return &ValidationError{Field: "details", Message: "plain transactions carry no details"}
		}
	case FamilyLoan:
		d, ok := t.Loan()
		if !ok {
			return &ValidationError{Field: "details", Message: "loan details required"}
		}
		if strings.TrimSpace(d.PersonName) == "" {
			return &ValidationError{Field: "personName", Message: "is required"}
		}
		if d.LoanCharges.Cents < 0 {
			return &ValidationError{Field: "loanCharges", Message: "must not be negative"}
		}
		if t.SubType == SubTypeRepaid && d.ParentID == nil {
			return &ValidationError{Field: "parentId", Message: "repayment must reference a loan"}
		}
		if t.SubType == SubTypeLoan && d.ParentID != nil {
			return &ValidationError{Field: "parentId", Message: "root loan cannot have a parent"}
		}
	case FamilyAsset:
		d, ok := t.Asset()
		if !ok {
			return &ValidationError{Field: "details", Message: "asset details required"}
		}
		if strings.TrimSpace(d.AssetName) == "" {
			return &ValidationError{Field: "assetName", Message: "is required"}
		}
		if d.Quantity < 0 {
			return &ValidationError{Field: "quantity", Message: "must not be negative"}
		}
		if t.SubType == SubTypeAsset && d.ParentID != nil {
			return &ValidationError{Field: "parentId", Message: "asset root cannot have a parent"}
		}
		if t.SubType != SubTypeAsset && d.ParentID == nil {
			return &ValidationError{Field: "parentId", Message: "asset cost/income must reference an asset"}
		}
	case FamilyFuel:
		d, ok := t.Fuel()
		if !ok {
			return &ValidationError{Field: "details", Message: "fuel details required"}
		}
		if d.OdometerReading < 0 {
			return &ValidationError{Field: "odometerReading", Message: "must not be negative"}
		}
		if d.FuelQuantity < 0 {
			return &ValidationError{Field: "fuelQuantity", Message: "must not be negative"}
		}
	}
	return nil
}

// Validate checks a category definition before it is written.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if strings.TrimSpace(c.Icon) == "" {
		return &ValidationError{Field: "icon", Message: "is required"}
	}
	if !c.Type.Valid() {
		return &ValidationError{Field: "type", Message: "must be income or expense"}
	}
	if !c.SubType.Valid() {
		return &ValidationError{Field: "subType", Message: "unknown subtype " + string(c.SubType)}
	}
	if c.Budget != nil && c.Budget.Cents < 0 {
		return &ValidationError{Field: "budget", Message: "must not be negative"}
	}
	return nil
}

// BuiltinKey identifies a built-in category independently of its id.
func (c Category) BuiltinKey() string {
	return c.Icon + "|" + string(c.Type) + "|" + string(c.SubType)
}

// DateRange is inclusive on both ends.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the range, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Empty reports whether the range cannot contain any instant.
func (r DateRange) Empty() bool {
	return r.End.Before(r.Start)
}

// MonthRange returns the inclusive range covering the month of t.
func MonthRange(t time.Time) DateRange {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return DateRange{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}
