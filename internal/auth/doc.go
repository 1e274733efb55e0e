// Package auth issues and verifies the bearer tokens of the clinic API and
// hashes account passwords.
//
// Access and refresh tokens are HS256 JWTs signed with two distinct secrets,
// so a refresh token is never accepted where an access token is expected.
// Every verification failure is reported as ErrInvalidToken.
package auth
