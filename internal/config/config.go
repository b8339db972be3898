// Package config holds the document store connection options, their
// validation, and loading from a JSON file and command-line flags.
package config

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/and161185/docrepo/internal/errs"
)

// AuthType selects how the client authenticates.
type AuthType string

const (
	AuthNone  AuthType = "none"
	AuthScram AuthType = "scram"
	AuthX509  AuthType = "x509"
)

// ChannelType selects the transport security of the connection.
type ChannelType string

const (
	ChannelPlain ChannelType = "plain"
	ChannelTLS   ChannelType = "tls"
)

// ReadConcern is a store read concern level. Empty inherits the server default.
type ReadConcern string

const (
	ReadLocal        ReadConcern = "local"
	ReadAvailable    ReadConcern = "available"
	ReadMajority     ReadConcern = "majority"
	ReadLinearizable ReadConcern = "linearizable"
	ReadSnapshot     ReadConcern = "snapshot"
)

// WriteConcern is a store write concern level. Empty inherits the server default.
type WriteConcern string

const (
	WriteMajority       WriteConcern = "majority"
	WriteW1             WriteConcern = "w1"
	WriteJournaled      WriteConcern = "journaled"
	WriteUnacknowledged WriteConcern = "unacknowledged"
)

// Concerns pairs read and write concern levels.
type Concerns struct {
	Read  ReadConcern
	Write WriteConcern
}

// NamingConvention maps an entity type name to a collection name.
type NamingConvention func(typeName string) string

// Options describe how to reach the document store and the defaults applied
// to bound databases and collections.
type Options struct {
	Scheme      string // "mongodb" or "mongodb+srv"
	Host        string
	Port        int
	Database    string
	Application string

	Auth         AuthType
	Channel      ChannelType
	User         string
	Password     string
	AuthDatabase string

	ClientCertificates []tls.Certificate
	AllowSelfSigned    bool
	ReplicaSet         string
	ConnectTimeout     time.Duration

	DatabaseConcerns   Concerns
	CollectionConcerns Concerns

	Naming NamingConvention
}

// Option mutates Options during construction.
type Option func(*Options)

// Defaults returns options for an unauthenticated local server.
func Defaults() Options {
	return Options{
		Scheme:         "mongodb",
		Host:           "localhost",
		Port:           27017,
		Application:    "docrepo",
		Auth:           AuthNone,
		Channel:        ChannelPlain,
		AuthDatabase:   "admin",
		ConnectTimeout: 10 * time.Second,
		Naming:         LowerCamel,
	}
}

// New applies opts on top of Defaults.
func New(opts ...Option) Options {
	o := Defaults()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithScheme(scheme string) Option { return func(o *Options) { o.Scheme = scheme } }

func WithHost(host string, port int) Option {
	return func(o *Options) { o.Host, o.Port = host, port }
}

func WithDatabase(name string) Option { return func(o *Options) { o.Database = name } }

func WithApplication(name string) Option { return func(o *Options) { o.Application = name } }

// WithScramAuth enables SCRAM-SHA-256 authentication against authDB.
func WithScramAuth(user, password, authDB string) Option {
	return func(o *Options) {
		o.Auth, o.User, o.Password = AuthScram, user, password
		if authDB != "" {
			o.AuthDatabase = authDB
		}
	}
}

// WithX509Auth enables certificate authentication; it implies TLS.
func WithX509Auth(certs ...tls.Certificate) Option {
	return func(o *Options) {
		o.Auth, o.Channel = AuthX509, ChannelTLS
		o.ClientCertificates = append(o.ClientCertificates, certs...)
	}
}

// WithTLS switches the channel to TLS.
func WithTLS(allowSelfSigned bool) Option {
	return func(o *Options) { o.Channel, o.AllowSelfSigned = ChannelTLS, allowSelfSigned }
}

func WithReplicaSet(name string) Option { return func(o *Options) { o.ReplicaSet = name } }

func WithConnectTimeout(d time.Duration) Option { return func(o *Options) { o.ConnectTimeout = d } }

func WithDatabaseConcerns(c Concerns) Option { return func(o *Options) { o.DatabaseConcerns = c } }

func WithCollectionConcerns(c Concerns) Option { return func(o *Options) { o.CollectionConcerns = c } }

func WithNaming(fn NamingConvention) Option { return func(o *Options) { o.Naming = fn } }

// Validate reports the first configuration problem. It never touches the network.
func (o Options) Validate() error {
	switch o.Scheme {
	case "mongodb":
		if o.Port <= 0 || o.Port > 65535 {
			return &errs.ConfigError{Field: "port", Reason: fmt.Sprintf("out of range: %d", o.Port)}
		}
	case "mongodb+srv":
	default:
		return &errs.ConfigError{Field: "scheme", Reason: fmt.Sprintf("unsupported %q", o.Scheme)}
	}
	if strings.TrimSpace(o.Host) == "" {
		return &errs.ConfigError{Field: "host", Reason: "required"}
	}
	if strings.TrimSpace(o.Database) == "" {
		return &errs.ConfigError{Field: "database", Reason: "required"}
	}

	switch o.Channel {
	case ChannelPlain, ChannelTLS:
	default:
		return &errs.ConfigError{Field: "channel", Reason: fmt.Sprintf("unsupported %q", o.Channel)}
	}

	switch o.Auth {
	case AuthNone:
	case AuthScram:
		if o.User == "" || o.Password == "" {
			return &errs.ConfigError{Field: "auth", Reason: "scram requires user and password"}
		}
	case AuthX509:
		if len(o.ClientCertificates) == 0 {
			return &errs.ConfigError{Field: "auth", Reason: "x509 requires a client certificate"}
		}
		if o.Channel != ChannelTLS {
			return &errs.ConfigError{Field: "auth", Reason: "x509 requires a tls channel"}
		}
	default:
		return &errs.ConfigError{Field: "auth", Reason: fmt.Sprintf("unsupported %q", o.Auth)}
	}

	for _, c := range []Concerns{o.DatabaseConcerns, o.CollectionConcerns} {
		if err := c.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c Concerns) validate() error {
	switch c.Read {
	case "", ReadLocal, ReadAvailable, ReadMajority, ReadLinearizable, ReadSnapshot:
	default:
		return &errs.ConfigError{Field: "read_concern", Reason: fmt.Sprintf("unsupported %q", c.Read)}
	}
	switch c.Write {
	case "", WriteMajority, WriteW1, WriteJournaled, WriteUnacknowledged:
	default:
		return &errs.ConfigError{Field: "write_concern", Reason: fmt.Sprintf("unsupported %q", c.Write)}
	}
	return nil
}

// CollectionName applies the configured naming convention, LowerCamel when unset.
func (o Options) CollectionName(typeName string) string {
	if o.Naming == nil {
		return LowerCamel(typeName)
	}
	return o.Naming(typeName)
}

// LowerCamel turns "SampleEntity" into "sampleEntity".
func LowerCamel(name string) string {
	r := []rune(name)
	for i := 0; i < len(r) && unicode.IsUpper(r[i]); i++ {
		// keep the last capital of an acronym followed by a lower-case letter: "HTTPLog" -> "httpLog"
		if i > 0 && i+1 < len(r) && unicode.IsLower(r[i+1]) {
			break
		}
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

// SnakeCase turns "SampleEntity" into "sample_entity".
func SnakeCase(name string) string {
	var b strings.Builder
	r := []rune(name)
	for i, c := range r {
		if unicode.IsUpper(c) {
			if i > 0 && (unicode.IsLower(r[i-1]) || (i+1 < len(r) && unicode.IsLower(r[i+1]))) {
				b.WriteByte('_')
			}
			c = unicode.ToLower(c)
		}
		b.WriteRune(c)
	}
	return b.String()
}
