package storage

import "errors"

var (
	// ErrCallerNotFound is returned when a caller is not found
	ErrCallerNotFound = errors.New("caller not found")

	// ErrTierNotFound is returned when a usage tier is not found
	ErrTierNotFound = errors.New("tier not found")

	// ErrEndpointNotFound is returned when a metered endpoint is not found
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrBalanceNotFound is returned when a monthly balance row is not found
	ErrBalanceNotFound = errors.New("monthly balance not found")

	// ErrInsufficientBalance is returned when a conditional deduction matches
	// no row, meaning the remaining balance is smaller than the cost
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrCredentialNotFound is returned when a credential is not found
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrAdminUserNotFound is returned when an admin user is not found
	ErrAdminUserNotFound = errors.New("admin user not found")

	// ErrAdminTokenNotFound is returned when an admin service token is not found
	ErrAdminTokenNotFound = errors.New("admin token not found")
)
