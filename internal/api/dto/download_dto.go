package dto

import "time"

// RedeemRequest payload for POST /downloads.
type RedeemRequest struct {
	Token string `json:"token"`
}

// RedeemResponse reports a granted download.
type RedeemResponse struct {
	URL       string    `json:"url"`
	Uses      int       `json:"uses"`
	MaxUses   int       `json:"maxUses"`
	ExpiresAt time.Time `json:"expiresAt"`
	Last      bool      `json:"last"`
}

// PeekResponse is the non-consuming usage snapshot.
type PeekResponse struct {
	Uses      int       `json:"uses"`
	MaxUses   int       `json:"maxUses"`
	Remaining int       `json:"remaining"`
	ExpiresAt time.Time `json:"expiresAt"`
	Last      bool      `json:"last"`
}

// CreateOrderResponse returns the gateway order id the client approves.
type CreateOrderResponse struct {
	OrderID string `json:"orderID"`
}

// CaptureResponse reports a settled purchase and its download token.
type CaptureResponse struct {
	Status           string `json:"status"`
	Token            string `json:"token"`
	AlreadyProcessed bool   `json:"alreadyProcessed,omitempty"`
}

// ReissueRequest payload for the admin re-mint endpoint.
type ReissueRequest struct {
	OrderID  string `json:"orderID"`
	MaxUses  int    `json:"maxUses,omitempty"`
	TTLHours int    `json:"ttlHours,omitempty"`
}

// ReissueResponse reports the replacement token.
type ReissueResponse struct {
	Token      string    `json:"token"`
	MaxUses    int       `json:"maxUses"`
	ExpiresAt  time.Time `json:"expiresAt"`
	RevokedOld bool      `json:"revokedOld"`
}

// MintLinkRequest payload for the admin dataset-link endpoint.
type MintLinkRequest struct {
	Email   string `json:"email"`
	Version string `json:"version"`
}

// MintLinkResponse returns the signed dataset link token.
type MintLinkResponse struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	Version   string    `json:"version"`
	ExpiresAt time.Time `json:"expiresAt"`
}
