package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// MarshalJSON writes the amount as a decimal number ("12.05").
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string. The literal text
// is parsed as a decimal, so large amounts survive a round trip unchanged.
// Exponent notation is rejected.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	cents, err := ParseSignedDecimalToCents(s)
	if err != nil {
		return &ValidationError{Field: "amount", Message: fmt.Sprintf("invalid amount %q", s)}
	}
	*m = Money{Cents: cents}
	return nil
}

// transactionJSON is the flat wire shape used by the API and by backups.
// Family fields are present only for the matching subtype.
type transactionJSON struct {
	ID         int64   `json:"id"`
	Type       TxType  `json:"type"`
	SubType    SubType `json:"subType"`
	Amount     Money   `json:"amount"`
	CategoryID int64   `json:"categoryId"`
	Memo       string  `json:"memo"`
	Date       string  `json:"date"`
	ParentID   *int64  `json:"parentId,omitempty"`

	PersonName  string         `json:"personName,omitempty"`
	LoanCharges *Money         `json:"loanCharges,omitempty"`
	LoanDate    string         `json:"loanDate,omitempty"`
	DueDate     string         `json:"dueDate,omitempty"`
	Status      LoanStatusText `json:"status,omitempty"`

	AssetName       string   `json:"assetName,omitempty"`
	TransactionDate string   `json:"transactionDate,omitempty"`
	Quantity        *float64 `json:"quantity,omitempty"`
	MeasurementUnit string   `json:"measurementUnit,omitempty"`
	CurrentValue    *Money   `json:"currentValue,omitempty"`

	OdometerReading *float64 `json:"odometerReading,omitempty"`
	FuelQuantity    *float64 `json:"fuelQuantity,omitempty"`
	FuelType        string   `json:"fuelType,omitempty"`
}

func (t Transaction) MarshalJSON() ([]byte, error) {
	w := transactionJSON{
		ID:         t.ID,
		Type:       t.Type,
		SubType:    t.SubType,
		Amount:     t.Amount,
		CategoryID: t.CategoryID,
		Memo:       t.Memo,
		Date:       FormatISO(t.Date),
	}
	switch d := t.Details.(type) {
	case *LoanDetails:
		charges := d.LoanCharges
		w.PersonName = d.PersonName
		w.LoanCharges = &charges
		w.LoanDate = FormatISO(d.LoanDate)
		if d.DueDate != nil {
			w.DueDate = FormatISO(*d.DueDate)
		}
		w.ParentID = d.ParentID
		w.Status = d.Status
	case *AssetDetails:
		qty, cur := d.Quantity, d.CurrentValue
		w.AssetName = d.AssetName
		w.TransactionDate = FormatISO(d.TransactionDate)
		w.Quantity = &qty
		w.MeasurementUnit = d.MeasurementUnit
		w.CurrentValue = &cur
		w.ParentID = d.ParentID
	case *FuelDetails:
		odo, qty := d.OdometerReading, d.FuelQuantity
		w.OdometerReading = &odo
		w.FuelQuantity = &qty
		w.FuelType = d.FuelType
	case nil:
	}
	return json.Marshal(w)
}

func (t *Transaction) UnmarshalJSON(b []byte) error {
	var w transactionJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	date, err := ParseISO(w.Date)
	if err != nil {
		return &ValidationError{Field: "date", Message: err.Error()}
	}
	out := Transaction{
		ID:         w.ID,
		Type:       w.Type,
		SubType:    w.SubType,
		Amount:     w.Amount,
		CategoryID: w.CategoryID,
		Memo:       w.Memo,
		Date:       date,
	}
	if out.SubType == "" {
		out.SubType = SubTypeNone
	}

	switch out.SubType.Family() {
	case FamilyLoan:
		d := &LoanDetails{PersonName: w.PersonName, ParentID: w.ParentID, Status: w.Status}
		if w.LoanCharges != nil {
			d.LoanCharges = *w.LoanCharges
		}
		if d.LoanDate, err = parseOptionalISO(w.LoanDate, date); err != nil {
			return &ValidationError{Field: "loanDate", Message: err.Error()}
		}
		if w.DueDate != "" {
			due, err := ParseISO(w.DueDate)
			if err != nil {
				return &ValidationError{Field: "dueDate", Message: err.Error()}
			}
			d.DueDate = &due
		}
		out.Details = d
	case FamilyAsset:
		d := &AssetDetails{AssetName: w.AssetName, MeasurementUnit: w.MeasurementUnit, ParentID: w.ParentID}
		if w.Quantity != nil {
			d.Quantity = *w.Quantity
		}
		if w.CurrentValue != nil {
			d.CurrentValue = *w.CurrentValue
		}
		if d.TransactionDate, err = parseOptionalISO(w.TransactionDate, date); err != nil {
			return &ValidationError{Field: "transactionDate", Message: err.Error()}
		}
		out.Details = d
	case FamilyFuel:
		d := &FuelDetails{FuelType: w.FuelType}
		if w.OdometerReading != nil {
			d.OdometerReading = *w.OdometerReading
		}
		if w.FuelQuantity != nil {
			d.FuelQuantity = *w.FuelQuantity
		}
		out.Details = d
	case FamilyPlain:
	}
	*t = out
	return nil
}

const isoLayout = time.RFC3339Nano

// FormatISO renders t as ISO-8601; the zero time renders as "".
func FormatISO(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(isoLayout)
}

// ParseISO accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func ParseISO(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(isoLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

func parseOptionalISO(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	return ParseISO(s)
}
