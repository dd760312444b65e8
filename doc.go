// Package auth implements the credential and token lifecycle for a web
// client: password registration and login, short lived access tokens,
// rotating refresh tokens, password changes and logout.
//
// Token kinds:
//   - Access tokens are HS256 JWTs carrying the username as subject. They are
//     validated locally by signature and expiry and are never looked up in a
//     store, so logout and password changes leave them valid until they expire.
//   - Refresh tokens are opaque random strings persisted through a
//     RefreshTokenStore. RefreshTokenManager keeps at most one per user:
//     issuing a new one supersedes the previous, redeeming one does not rotate it.
//
// Request authentication:
//   - middleware/jwtware extracts a bearer header or cookie and binds the
//     subject to the request context on success. Failures clear the identity
//     and let the request through; routes that need a caller use RequireAuth.
//
// Activity sinks:
//   - ActivitySink receives register, login, refresh, logout and federated
//     provisioning events. Sinks run best-effort (errors are logged) so the
//     metrics package or a queue can consume them without blocking requests.
//
// Storage lives in repository (bun over postgres or sqlite) and redisstore
// (refresh tokens on redis). Federated login is in social.
package auth
