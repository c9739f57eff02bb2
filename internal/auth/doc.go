// Package auth authenticates webhook requests from the telephony engine.
//
// # Tokens
//
// The engine presents a JWT signed with HS256 using the shared secret from
// the server configuration. The token must carry a "sub" claim identifying
// the caller and a valid "exp" claim.
//
// Verify and generate tokens through a Verifier:
//
//	verifier := auth.NewVerifier([]byte(secret))
//	subject, err := verifier.Verify(tokenString)
//	token, err := verifier.Generate("engine", time.Hour)
//
// Generate exists for harnesses that impersonate the engine; production
// engines mint their own tokens against the same secret.
//
// # Middleware
//
// Middleware wraps an http.Handler and rejects requests without a valid
// bearer token before they reach it:
//
//	protected := auth.Middleware(verifier, logger)(handler)
//
// Rejections are 401 responses with a JSON error body. The middleware never
// writes on success, so the wrapped handler keeps full control of the
// response.
package auth
