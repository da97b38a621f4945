package route

import (
	"net/http"

	"library-gateway/internal/config"
)

// BookV2MediaType selects the v2 book representation through the Accept header.
const BookV2MediaType = "application/vnd.book-service.v2+json"

// Defaults returns the built-in library route table used when the config
// declares no routes.
func Defaults() []config.RouteConfig {
	routes := []config.RouteConfig{
		// Open self-registration; declare the route with access "admin" to restrict user creation.
		{Method: http.MethodPost, Path: "/api/users", Service: "auth", Target: "auth/users", Access: config.AccessPublic},
	}
	for _, v := range LoginVersions {
		routes = append(routes, v.route())
	}

	routes = append(routes,
		config.RouteConfig{Method: http.MethodPut, Path: "/api/auth/refresh-token", Service: "auth", Target: "auth/refresh-token", Access: config.AccessPublic},
		config.RouteConfig{Method: http.MethodDelete, Path: "/api/auth/logout", Service: "auth", Target: "auth/logout", Access: config.AccessToken},
		config.RouteConfig{Method: http.MethodGet, Path: "/api/auth/google/login", Service: "auth", Target: "auth/google/login", Access: config.AccessPublic},
		config.RouteConfig{Method: http.MethodGet, Path: "/api/auth/google/callback", Service: "auth", Target: "auth/google/callback", Access: config.AccessPublic},
	)
	for _, strategy := range []string{"nplus1", "eager", "batch"} {
		routes = append(routes, config.RouteConfig{
			Method:  http.MethodGet,
			Path:    "/api/users/" + strategy,
			Service: "auth",
			Target:  "auth/users/" + strategy,
			Access:  config.AccessAdmin,
		})
	}

	routes = append(routes,
		config.RouteConfig{Method: http.MethodGet, Path: "/api/books", Service: "book", Target: "books", Access: config.AccessToken},
		config.RouteConfig{Method: http.MethodPost, Path: "/api/books", Service: "book", Target: "books", Access: config.AccessAdmin},
		config.RouteConfig{
			Method:       http.MethodGet,
			Path:         "/api/books/:id",
			Service:      "book",
			Target:       "books/:id",
			Access:       config.AccessToken,
			VersionQuery: "v",
			Variants: []config.VariantConfig{{
				Version:     "v2",
				Target:      "v2/books/:id",
				QueryValues: []string{"2", "v2"},
				MediaType:   BookV2MediaType,
			}},
		},
		config.RouteConfig{Method: http.MethodPut, Path: "/api/books/:id", Service: "book", Target: "books/:id", Access: config.AccessAdmin},
		config.RouteConfig{Method: http.MethodDelete, Path: "/api/books/:id", Service: "book", Target: "books/:id", Access: config.AccessAdmin},

		config.RouteConfig{
			Method:          http.MethodPost,
			Path:            "/api/transactions",
			Service:         "transaction",
			Target:          "transactions",
			Access:          config.AccessToken,
			InjectUserField: "user_id",
		},
		config.RouteConfig{Method: http.MethodGet, Path: "/api/me/borrowed-books", Service: "transaction", Target: "users/{user_id}/borrowed-books", Access: config.AccessToken},
		config.RouteConfig{Method: http.MethodGet, Path: "/api/me/transactions", Service: "transaction", Target: "users/{user_id}/transactions", Access: config.AccessToken},
	)
	return routes
}
