// Package common contains shared constants and sentinel errors used across
// Serialboxd components.
package common

// AuthorizationHeaderName is the HTTP header carrying the access token.
const AuthorizationHeaderName = "Authorization"

// BearerScheme is the authorization scheme expected in front of access tokens.
const BearerScheme = "Bearer"

// MinPasswordLength is the shortest password accepted on change or reset.
const MinPasswordLength = 8
