package core

import "time"

// Derived views. None of these are persisted; they are recomputed from a
// store snapshot on every read.
type (
	LoanStatus struct {
		TotalAmount     Money      `json:"totalAmount"`
		PaidAmount      Money      `json:"paidAmount"`
		RemainingAmount Money      `json:"remainingAmount"`
		IsCompleted     bool       `json:"isCompleted"`
		DueDate         *time.Time `json:"dueDate,omitempty"`
		IsOverdue       bool       `json:"isOverdue"`
		DaysUntilDue    *int       `json:"daysUntilDue,omitempty"`
	}

	LoanGroup struct {
		ParentID     int64          `json:"parentId"`
		PersonName   string         `json:"personName"`
		Parent       Transaction    `json:"parent"`
		Transactions []Transaction  `json:"transactions"` // root first, then repayments by date
		Status       LoanStatus     `json:"status"`
		StatusText   LoanStatusText `json:"statusText"`
	}

	// PersonLoans totals every loan group opened with one person.
	PersonLoans struct {
		PersonName string `json:"personName"`
		Given      Money  `json:"given"`
		Taken      Money  `json:"taken"`
		Remaining  Money  `json:"remaining"`
		Groups     int    `json:"groups"`
	}

	AssetGroup struct {
		ID              int64         `json:"id"`
		AssetName       string        `json:"assetName"`
		CategoryID      int64         `json:"categoryId"`
		Quantity        float64       `json:"quantity"`
		MeasurementUnit string        `json:"measurementUnit"`
		Value           Money         `json:"value"`        // root amount at creation
		CurrentValue    Money         `json:"currentValue"` // market value supplied on the root
		PurchaseDate    time.Time     `json:"purchaseDate"`
		Transactions    []Transaction `json:"transactions"`
		TotalCost       Money         `json:"totalCost"`
		TotalIncome     Money         `json:"totalIncome"`
	}

	// AssetCategorySummary is one row of the asset view. Merged rows carry
	// more than one group; ungrouped rows carry exactly one.
	AssetCategorySummary struct {
		CategoryID   int64        `json:"categoryId"`
		Merged       bool         `json:"merged"`
		Quantity     float64      `json:"quantity"`
		Value        Money        `json:"value"`
		CurrentValue Money        `json:"currentValue"`
		TotalCost    Money        `json:"totalCost"`
		TotalIncome  Money        `json:"totalIncome"`
		Groups       []AssetGroup `json:"groups"`
	}

	FuelFill struct {
		Transaction Transaction `json:"transaction"`
		Distance    float64     `json:"distance"`
		Mileage     float64     `json:"mileage"`
	}

	FuelStats struct {
		Fills          []FuelFill `json:"fills"`
		TotalDistance  float64    `json:"totalDistance"`
		TotalFuel      float64    `json:"totalFuel"`
		TotalCost      Money      `json:"totalCost"`
		OverallMileage float64    `json:"overallMileage"`
	}

	BudgetStatus struct {
		CategoryID  int64     `json:"categoryId"`
		Category    string    `json:"category"`
		Budget      *Money    `json:"budget,omitempty"`
		Spend       Money     `json:"spend"`
		PercentUsed float64   `json:"percentUsed"`
		Threshold   Threshold `json:"threshold"`
	}
)

// Threshold buckets a budget percentage for display.
type Threshold string

const (
	ThresholdUnder25 Threshold = "under"
	Threshold25      Threshold = "25"
	Threshold50      Threshold = "50"
	Threshold75      Threshold = "75"
	Threshold100     Threshold = "100"
	ThresholdOver    Threshold = "over"
)
