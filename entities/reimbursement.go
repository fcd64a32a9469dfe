package entities

// ReimbursementLineInput is one medication line of a prescription or simulation
type ReimbursementLineInput struct {
	PublicPrice    int64 `json:"publicPrice"`
	IsReimbursable bool  `json:"isReimbursable"`
}

// ReimbursementResult aggregates a batch of lines.
// ReimbursedAmount + RemainingAmount == TotalAmount.
type ReimbursementResult struct {
	TotalAmount      int64   `json:"totalAmount"`
	ReimbursedAmount int64   `json:"reimbursedAmount"`
	RemainingAmount  int64   `json:"remainingAmount"`
	Rate             float64 `json:"rate"`
	Category         string  `json:"category"`
}
