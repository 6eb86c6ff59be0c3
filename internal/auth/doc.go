// Package auth provides token verification for websocket handshakes.
//
// Token issuance is not this system's job: clients arrive with a bearer
// credential minted elsewhere, and the engine only needs to resolve it to
// a user identity before the connection is admitted. The TokenVerifier
// interface captures exactly that, with an HS256 JWT implementation
// behind it.
//
// Credentials are extracted from the handshake itself (Authorization
// header or access_token query parameter), never from message bodies.
// The Generate method exists for the development `palaver token`
// subcommand and for tests.
package auth
