package http

import (
	"github.com/signin-api/internal/application/credential"
	"github.com/signin-api/internal/infrastructure/delivery"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	CredentialRepo credential.Store
	Delivery       delivery.Sender
}
