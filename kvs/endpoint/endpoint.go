// Package endpoint resolves connection strings such as
// "file:///var/lib/surreal.db" or "etcd://10.0.0.1:2379,10.0.0.2:2379/surreal"
// into the storage plugin that serves them and the options
// that plugin needs.
package endpoint

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"github.com/SpeedReach/surrealdb/storage/kv"
	"github.com/SpeedReach/surrealdb/storage/kv/plugins/bbolt"
	"github.com/SpeedReach/surrealdb/storage/kv/plugins/etcd"
	"github.com/SpeedReach/surrealdb/storage/kv/plugins/memory"
	"github.com/SpeedReach/surrealdb/storage/kv/plugins/mvcc"
)

var (
	// ErrUnknownScheme is returned for schemes no plugin serves
	ErrUnknownScheme = errors.New("unknown endpoint scheme")
	// ErrInvalid is returned for malformed endpoints
	ErrInvalid = errors.New("invalid endpoint")
)

// Endpoint identifies one storage backend
type Endpoint struct {
	// Kind is the name of the plugin that serves this endpoint
	Kind string
	// Address is the normalized location of the backend:
	// a path, a store name or a comma separated list of hosts
	Address string
	// Options are passed to the plugin when the store is opened
	Options kv.PluginOptions
}

// String formats the endpoint as a connection string
func (endpoint Endpoint) String() string {
	var s string

	switch endpoint.Kind {
	case memory.DriverName:
		s = "mem://"
	case bbolt.DriverName:
		s = Format("file", endpoint.Address)
	default:
		s = Format(endpoint.Kind, endpoint.Address)
	}

	if prefix, ok := endpoint.Options[etcd.OptionPrefix].(string); ok && endpoint.Kind == etcd.DriverName {
		s += "/" + strings.TrimPrefix(prefix, "/")
	}

	return s
}

// Format builds a connection string from a scheme and a path
func Format(scheme string, path string) string {
	return fmt.Sprintf("%s://%s", scheme, path)
}

// New resolves a scheme and an address
func New(scheme string, address string) (Endpoint, error) {
	if scheme == "memory" && address == "" {
		return Parse("memory")
	}

	return Parse(Format(scheme, address))
}

// Parse resolves a connection string. Query parameters
// become plugin options so "file://data.db?nosync=true"
// opens a bbolt store without fsync.
func Parse(raw string) (Endpoint, error) {
	if raw == "memory" {
		return Endpoint{Kind: memory.DriverName, Address: "memory", Options: kv.PluginOptions{}}, nil
	}

	u, err := url.Parse(raw)

	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrInvalid, err)
	}

	options, err := queryOptions(u.Query())

	if err != nil {
		return Endpoint{}, err
	}

	endpoint := Endpoint{Options: options}

	switch strings.ToLower(u.Scheme) {
	case "mem", "memory":
		endpoint.Kind = memory.DriverName
		endpoint.Address = "memory"
	case "file", "bbolt":
		path := u.Host + u.Path

		if path == "" {
			path = u.Opaque
		}

		if path == "" {
			return Endpoint{}, fmt.Errorf("%w: %q has no path", ErrInvalid, raw)
		}

		endpoint.Kind = bbolt.DriverName
		endpoint.Address = filepath.Clean(path)
		endpoint.Options[bbolt.OptionPath] = endpoint.Address
	case "mvcc":
		name := strings.Trim(u.Host+u.Path, "/")

		if name == "" {
			return Endpoint{}, fmt.Errorf("%w: %q has no store name", ErrInvalid, raw)
		}

		endpoint.Kind = mvcc.DriverName
		endpoint.Address = name
		endpoint.Options[mvcc.OptionName] = name
	case "etcd":
		var hosts []string

		for _, host := range strings.Split(u.Host, ",") {
			if host = strings.TrimSpace(host); host != "" {
				hosts = append(hosts, host)
			}
		}

		if len(hosts) == 0 {
			return Endpoint{}, fmt.Errorf("%w: %q has no hosts", ErrInvalid, raw)
		}

		endpoint.Kind = etcd.DriverName
		endpoint.Address = strings.Join(hosts, ",")
		endpoint.Options[etcd.OptionEndpoints] = hosts

		if prefix := strings.Trim(u.Path, "/"); prefix != "" {
			endpoint.Options[etcd.OptionPrefix] = prefix + "/"
		}
	default:
		return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownScheme, u.Scheme)
	}

	return endpoint, nil
}

func queryOptions(query url.Values) (kv.PluginOptions, error) {
	options := kv.PluginOptions{}
	names := make([]string, 0, len(query))

	for name := range query {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		values := query[name]

		if len(values) != 1 {
			return nil, fmt.Errorf("%w: option %q is given %d times", ErrInvalid, name, len(values))
		}

		options[name] = values[0]
	}

	return options, nil
}
