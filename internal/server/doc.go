// Package server receives the OAuth authorization code redirect during `genrefy auth`.
//
// [CallbackServer] binds the configured host and port, serves a [BasicRouter], and is shut
// down as soon as a callback has been handled. [OAuthHandler] checks the CSRF state, trades
// the code through an [Exchanger], and hands exactly one [OAuthResult] to the waiting command.
// Repeated callbacks are rejected.
//
// [Middleware] wraps handlers in reverse order (last added executes first). [RequestLogger]
// is the only middleware the command installs.
package server
