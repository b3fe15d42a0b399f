package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// CashierPayload captures the data available when minting a session token.
type CashierPayload struct {
	CashierID   string
	CashierName string
	BranchID    string
	JTI         string
}

// CashierClaims is the typed token the back office issues to a signed-in cashier.
type CashierClaims struct {
	CashierID   string `json:"cashier_id"`
	CashierName string `json:"cashier_name"`
	BranchID    string `json:"branch_id,omitempty"`
	jwt.RegisteredClaims
}
