package domain

// BootstrapData describes the first administrator account.
type BootstrapData struct {
	Email    string
	Password string
}
