package models

// TokenRequest exchanges an API key for a bearer token.
type TokenRequest struct {
	APIKey string `json:"apiKey"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
}
