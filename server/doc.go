// Package server implements the OAuth 2.0 authorization server logic of the proxy.
//
// A single statically configured client is known. The Server validates
// authorization requests, mints single-use authorization codes on approval,
// exchanges them for opaque bearer tokens (verifying PKCE S256), issues tokens
// for the client_credentials grant and validates bearer tokens for the access gate.
//
// Codes and tokens live in storage.CodeStore and storage.TokenStore. Failures are
// reported as *Error values wrapping one of the Err* sentinels so that the HTTP
// layer can map them to RFC 6749 error responses with errors.Is.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, err := server.New(store, store, &server.Config{
//	    Issuer:       "https://auth.example.com",
//	    ClientID:     "my-client",
//	    ClientSecret: os.Getenv("CLIENT_SECRET"),
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	token, err := srv.IssueClientCredentialsToken(ctx, "my-client", secret, "")
package server
