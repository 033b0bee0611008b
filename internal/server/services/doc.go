// Package services implements the gateway's business operations on top of
// the repositories: dashboard users and their session tokens, merchant
// credentials, merchant request verification, checkout sessions bound to a
// browser, payments and signed webhook notifications.
//
// Services are constructed explicitly and injected; none of them keep
// package-level state.
package services
