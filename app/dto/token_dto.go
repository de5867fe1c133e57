package dto

// TokenDTO is the public shape of a token.
// ID and TotalSupply are strings so that no client ever sees them as floats.
type TokenDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	TotalSupply string `json:"totalSupply"`
	CreatedAt   string `json:"createdAt"`
	Creator     string `json:"creator"`
}

// CreateTokenRequest is the body of a token create
type CreateTokenRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Symbol      string `json:"symbol" validate:"required,max=10"`
	TotalSupply string `json:"totalSupply" validate:"required,uintstr"`
	Creator     string `json:"creator" validate:"required,max=255"`
}

// ListTokensResponse wraps a token list
type ListTokensResponse struct {
	Tokens []TokenDTO `json:"tokens"`
	Total  int        `json:"total"`
}
