package common

// AuthorizationHeaderName is the HTTP header carrying the bearer access token.
const AuthorizationHeaderName = "Authorization"

// PasswordResetPurpose is the purpose tag embedded in password-reset tokens.
// Verification rejects any token whose purpose claim differs.
const PasswordResetPurpose = "password_reset"

// MinPasswordLength is the minimum accepted password length for registration
// and password reset.
const MinPasswordLength = 6
