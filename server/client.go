package server

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// ValidateClientID accepts clientID iff it equals the configured client id.
// The comparison runs in constant time.
func (s *Server) ValidateClientID(clientID string) error {
	if clientID == "" || subtle.ConstantTimeCompare([]byte(clientID), []byte(s.Config.ClientID)) != 1 {
		return newError(ErrInvalidClient, "unknown client")
	}
	return nil
}

// ValidateClientCredentials authenticates the client by id and secret.
// Both checks always run so that the response time does not reveal which one failed.
func (s *Server) ValidateClientCredentials(clientID, clientSecret string) error {
	idErr := s.ValidateClientID(clientID)
	secretErr := bcrypt.CompareHashAndPassword(s.clientSecretHash, secretDigest(clientSecret))

	if idErr != nil || secretErr != nil {
		return newError(ErrInvalidClient, "client authentication failed")
	}
	return nil
}
