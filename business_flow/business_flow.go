package businessflow

import (
	"strconv"

	"github.com/amirphl/token-registry/app/dto"
	"github.com/amirphl/token-registry/models"
	"github.com/amirphl/token-registry/utils"
)

// ClientMetadata holds client-related information used in log lines
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

func (cm *ClientMetadata) String() string {
	if cm == nil {
		return "-"
	}
	if cm.RequestID != "" {
		return "request=" + cm.RequestID + " ip=" + cm.IPAddress
	}
	return "ip=" + cm.IPAddress
}

// ToTokenDTO converts a token model to its public shape
func ToTokenDTO(token models.Token) dto.TokenDTO {
	return dto.TokenDTO{
		ID:          strconv.FormatUint(token.ID, 10),
		Name:        token.Name,
		Symbol:      token.Symbol,
		TotalSupply: token.TotalSupply,
		CreatedAt:   utils.FormatISO8601(token.CreatedAt),
		Creator:     token.Creator,
	}
}

// ToTokenDTOs converts a list of token models, preserving order
func ToTokenDTOs(tokens []*models.Token) []dto.TokenDTO {
	out := make([]dto.TokenDTO, 0, len(tokens))
	for _, t := range tokens {
		if t == nil {
			continue
		}
		out = append(out, ToTokenDTO(*t))
	}
	return out
}
