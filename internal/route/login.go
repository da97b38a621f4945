package route

import (
	"net/http"
	"strconv"

	"library-gateway/internal/config"
)

// LoginVersion identifies one of the coexisting login response contracts.
// The forwarding logic is identical for all of them; only the paths differ.
type LoginVersion int

const (
	LoginV1 LoginVersion = iota + 1
	LoginV2
	LoginV3
	LoginV4
	LoginV5
)

// LoginVersions lists every supported login contract, oldest first.
var LoginVersions = []LoginVersion{LoginV1, LoginV2, LoginV3, LoginV4, LoginV5}

func (v LoginVersion) String() string {
	return "v" + strconv.Itoa(int(v))
}

// PublicPath is the path callers use. V1 predates path versioning.
func (v LoginVersion) PublicPath() string {
	if v == LoginV1 {
		return "/api/auth/login"
	}
	return "/api/" + v.String() + "/auth/login"
}

// DownstreamPath is the auth service path handling this contract.
func (v LoginVersion) DownstreamPath() string {
	if v == LoginV1 {
		return "auth/login"
	}
	return "auth/" + v.String() + "/login"
}

func (v LoginVersion) route() config.RouteConfig {
	return config.RouteConfig{
		Method:  http.MethodPost,
		Path:    v.PublicPath(),
		Service: "auth",
		Target:  v.DownstreamPath(),
		Access:  config.AccessPublic,
	}
}
