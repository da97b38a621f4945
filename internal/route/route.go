// Package route maps public gateway paths to downstream service paths.
package route

import (
	"errors"
	"fmt"
	"mime"
	"net/url"
	"slices"
	"strings"

	"library-gateway/internal/config"
	"library-gateway/internal/model"
)

// UserIDPlaceholder in a target is replaced by the validated subject id.
const UserIDPlaceholder = "{user_id}"

// ErrNoIdentity is returned when a target needs the caller's identity but none is attached.
var ErrNoIdentity = errors.New("target requires an identity")

// ErrInvalidParam is returned when a path parameter would leave its segment.
var ErrInvalidParam = errors.New("invalid path parameter")

// Variant is an alternative downstream target selected by content negotiation.
type Variant struct {
	Version     string
	Target      string
	QueryValues []string
	MediaType   string
}

// Route is one public endpoint and the downstream path it forwards to.
type Route struct {
	Method          string
	Path            string
	Service         string
	Target          string
	Access          string
	InjectUserField string
	VersionQuery    string
	Variants        []Variant

	base *url.URL
}

// Params looks up a named path parameter of the matched public path.
type Params func(name string) string

// Table is the immutable set of routes served by the gateway.
type Table struct {
	routes []*Route
}

// New builds the route table from cfg, falling back to Defaults when cfg
// declares no routes. Service base URLs are parsed once here.
func New(cfg *config.Config) (*Table, error) {
	decls := cfg.Routes
	if len(decls) == 0 {
		decls = Defaults()
	}

	bases := make(map[string]*url.URL, len(cfg.Services))
	for name, raw := range cfg.Services {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("route: parse service %s url: %w", name, err)
		}
		bases[name] = u
	}

	t := &Table{routes: make([]*Route, 0, len(decls))}
	for _, d := range decls {
		base, ok := bases[d.Service]
		if !ok {
			return nil, fmt.Errorf("route: %s %s: service %q is not configured", d.Method, d.Path, d.Service)
		}
		r := &Route{
			Method:          strings.ToUpper(d.Method),
			Path:            d.Path,
			Service:         d.Service,
			Target:          d.Target,
			Access:          d.Access,
			InjectUserField: d.InjectUserField,
			VersionQuery:    d.VersionQuery,
			base:            base,
		}
		if r.Access == "" {
			r.Access = config.AccessPublic
		}
		for _, v := range d.Variants {
			r.Variants = append(r.Variants, Variant(v))
		}
		t.routes = append(t.routes, r)
	}
	return t, nil
}

// Routes returns the routes in declaration order.
func (t *Table) Routes() []*Route {
	return t.routes
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.routes)
}

// RequiresToken reports whether callers must present a valid bearer token.
func (r *Route) RequiresToken() bool {
	return r.Access == config.AccessToken || r.Access == config.AccessAdmin
}

// RequiredRole returns the role the route is restricted to, if any.
func (r *Route) RequiredRole() (model.Role, bool) {
	if r.Access == config.AccessAdmin {
		return model.RoleAdmin, true
	}
	return "", false
}

// Resolve picks the downstream target for one request. It returns the chosen
// variant version, or "" for the default target.
func (r *Route) Resolve(params Params, rawQuery, accept string, id *model.Identity) (model.ProxyTarget, string, error) {
	version, tmpl := r.negotiate(rawQuery, accept)
	path, err := expand(tmpl, params, id)
	if err != nil {
		return model.ProxyTarget{}, "", fmt.Errorf("route %s %s: %w", r.Method, r.Path, err)
	}
	return model.ProxyTarget{Service: r.Service, BaseURL: r.base, Path: path}, version, nil
}

// negotiate checks the version query parameter against every variant first,
// then the Accept header, and otherwise keeps the default target.
func (r *Route) negotiate(rawQuery, accept string) (string, string) {
	if len(r.Variants) == 0 {
		return "", r.Target
	}

	if r.VersionQuery != "" {
		if q, err := url.ParseQuery(rawQuery); err == nil && q.Has(r.VersionQuery) {
			want := q.Get(r.VersionQuery)
			for _, v := range r.Variants {
				if slices.Contains(v.QueryValues, want) {
					return v.Version, v.Target
				}
			}
		}
	}

	if accept != "" {
		accepted := mediaTypes(accept)
		for _, v := range r.Variants {
			if v.MediaType != "" && slices.Contains(accepted, strings.ToLower(v.MediaType)) {
				return v.Version, v.Target
			}
		}
	}

	return "", r.Target
}

// mediaTypes returns the lower-cased media types listed in an Accept header.
func mediaTypes(accept string) []string {
	var out []string
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		out = append(out, mt)
	}
	return out
}

// expand fills the user id placeholder from id and ":name" segments from params.
// A parameter must stay one literal segment, so decoded values holding a
// separator, dot segment or placeholder braces are rejected.
func expand(tmpl string, params Params, id *model.Identity) (string, error) {
	if strings.Contains(tmpl, UserIDPlaceholder) {
		if id == nil || id.SubjectID == "" {
			return "", ErrNoIdentity
		}
		tmpl = strings.ReplaceAll(tmpl, UserIDPlaceholder, id.SubjectID)
	}

	segments := strings.Split(tmpl, "/")
	for i, seg := range segments {
		name, ok := strings.CutPrefix(seg, ":")
		if !ok || name == "" {
			continue
		}
		raw := params(name)
		if raw == "" {
			return "", fmt.Errorf("missing path parameter %q", name)
		}
		val, err := url.PathUnescape(raw)
		if err != nil {
			return "", fmt.Errorf("%w %q: %w", ErrInvalidParam, name, err)
		}
		if val == "" || val == "." || val == ".." || strings.ContainsAny(val, "/\\{}") {
			return "", fmt.Errorf("%w %q: %q", ErrInvalidParam, name, raw)
		}
		segments[i] = val
	}
	return strings.Join(segments, "/"), nil
}
