// Package auth provides bearer-token authentication for the gateway's HTTP
// routes.
//
// Tokens are HS256 JWTs signed with auth.jwt_secret. The "sub" claim names the
// client and is made available to handlers via SubjectFromContext. Tokens are
// minted with `dock-gateway token --subject NAME`.
//
// Clients send the token as
//
//	Authorization: Bearer <token>
//
// or, where headers cannot be set (browser WebSocket), as the access_token
// query parameter.
package auth
