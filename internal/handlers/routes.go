package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Auth: deps.Auth, Limiter: deps.AuthLimiter}
	profiles := ProfileHandler{Identities: deps.Identities, Profiles: deps.Profiles}
	couples := PairingHandler{Identities: deps.Identities, Pairing: deps.Pairing, Changes: deps.Changes, Limiter: deps.RedeemLimiter}
	events := EventsHandler{Identities: deps.Identities, Pairing: deps.Pairing, Events: deps.Events, Changes: deps.Changes}
	todos := TodosHandler{Identities: deps.Identities, Pairing: deps.Pairing, Todos: deps.Todos, Changes: deps.Changes}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", auth.Logout)
	mux.HandleFunc("/api/v1/profile", profiles.Handle)
	mux.HandleFunc("/api/v1/profile/avatar", profiles.Avatar)
	mux.HandleFunc("/api/v1/couple", couples.Handle)
	mux.HandleFunc("/api/v1/couple/code", couples.CreateCode)
	mux.HandleFunc("/api/v1/couple/redeem", couples.Redeem)
	mux.HandleFunc("/api/v1/events", events.Handle)
	mux.HandleFunc("/api/v1/todos", todos.Handle)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Auth       AuthService
	Identities Authenticator
	Profiles   ProfileService
	Pairing    PairingService
	Events     EventStore
	Todos      TodoStore
	Changes    ChangePublisher

	AuthLimiter   RateLimiter
	RedeemLimiter RateLimiter
}
