package dto

// NonceRequest asks for a login nonce
type NonceRequest struct {
	Address string `json:"address" binding:"required"`
}

// NonceResponse carries the message the wallet must sign
type NonceResponse struct {
	Success bool   `json:"success"`
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// LoginRequest is a signed login message
type LoginRequest struct {
	Address   string `json:"address" binding:"required"`
	Nonce     string `json:"nonce" binding:"required"`
	Signature string `json:"signature" binding:"required"` // 0x-prefixed personal_sign output
}

// LoginResponse carries the caller token
type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}
