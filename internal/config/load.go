package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/and161185/docrepo/internal/crypto"
)

// fileOptions is the JSON shape of a configuration file.
type fileOptions struct {
	Scheme           string `json:"scheme"`
	Host             string `json:"host"`
	Port             int    `json:"port"`
	Database         string `json:"database"`
	Application      string `json:"application"`
	Auth             string `json:"auth"`
	Channel          string `json:"channel"`
	User             string `json:"user"`
	Password         string `json:"password"`
	AuthDatabase     string `json:"auth_database"`
	Certificate      string `json:"certificate"`
	CertificatePass  string `json:"certificate_password"`
	AllowSelfSigned  bool   `json:"allow_self_signed"`
	ReplicaSet       string `json:"replica_set"`
	ConnectTimeout   string `json:"connect_timeout"`
	ReadConcern      string `json:"read_concern"`
	WriteConcern     string `json:"write_concern"`
	CollReadConcern  string `json:"collection_read_concern"`
	CollWriteConcern string `json:"collection_write_concern"`
}

// Load builds Options from defaults, then an optional JSON file given by
// -config, then the remaining flags. The result is validated.
func Load(name string, args []string) (Options, error) {
	o := Defaults()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfgPath := fs.String("config", "", "path to JSON configuration file")
	scheme := fs.String("scheme", o.Scheme, "connection scheme (mongodb, mongodb+srv)")
	host := fs.String("host", o.Host, "store host")
	port := fs.Int("port", o.Port, "store port")
	db := fs.String("db", o.Database, "database name")
	app := fs.String("app", o.Application, "application name reported to the server")
	auth := fs.String("auth", string(o.Auth), "auth type (none, scram, x509)")
	useTLS := fs.Bool("tls", false, "use a TLS channel")
	user := fs.String("user", "", "user name")
	password := fs.String("password", "", "password")
	authDB := fs.String("auth-db", o.AuthDatabase, "authentication database")
	cert := fs.String("cert", "", "client certificate (PEM, or PKCS#12 with .p12/.pfx)")
	certPass := fs.String("cert-password", "", "PKCS#12 password")
	selfSigned := fs.Bool("allow-self-signed", false, "accept self-signed server certificates")
	replicaSet := fs.String("replica-set", "", "replica set name")
	timeout := fs.Duration("connect-timeout", o.ConnectTimeout, "connect timeout")
	readConcern := fs.String("read-concern", "", "database read concern")
	writeConcern := fs.String("write-concern", "", "database write concern")

	if err := fs.Parse(args); err != nil {
		return Options{}, fmt.Errorf("parse flags: %w", err)
	}

	certPath, certPassword := "", ""
	if *cfgPath != "" {
		fo, err := readFile(*cfgPath)
		if err != nil {
			return Options{}, err
		}
		if err := fo.apply(&o); err != nil {
			return Options{}, err
		}
		certPath, certPassword = fo.Certificate, fo.CertificatePass
	}

	// explicitly set flags win over the file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "scheme":
			o.Scheme = *scheme
		case "host":
			o.Host = *host
		case "port":
			o.Port = *port
		case "db":
			o.Database = *db
		case "app":
			o.Application = *app
		case "auth":
			o.Auth = AuthType(*auth)
		case "tls":
			if *useTLS {
				o.Channel = ChannelTLS
			} else {
				o.Channel = ChannelPlain
			}
		case "user":
			o.User = *user
		case "password":
			o.Password = *password
		case "auth-db":
			o.AuthDatabase = *authDB
		case "cert":
			certPath = *cert
		case "cert-password":
			certPassword = *certPass
		case "allow-self-signed":
			o.AllowSelfSigned = *selfSigned
		case "replica-set":
			o.ReplicaSet = *replicaSet
		case "connect-timeout":
			o.ConnectTimeout = *timeout
		case "read-concern":
			o.DatabaseConcerns.Read = ReadConcern(*readConcern)
		case "write-concern":
			o.DatabaseConcerns.Write = WriteConcern(*writeConcern)
		}
	})

	if certPath != "" {
		c, err := crypto.LoadClientCertificate(certPath, certPassword)
		if err != nil {
			return Options{}, err
		}
		o.ClientCertificates = append(o.ClientCertificates, c)
	}

	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

func readFile(path string) (fileOptions, error) {
	var fo fileOptions
	b, err := os.ReadFile(path)
	if err != nil {
		return fo, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(b, &fo); err != nil {
		return fo, fmt.Errorf("decode config: %w", err)
	}
	return fo, nil
}

func (fo fileOptions) apply(o *Options) error {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setStr(&o.Scheme, fo.Scheme)
	setStr(&o.Host, fo.Host)
	setStr(&o.Database, fo.Database)
	setStr(&o.Application, fo.Application)
	setStr(&o.User, fo.User)
	setStr(&o.Password, fo.Password)
	setStr(&o.AuthDatabase, fo.AuthDatabase)
	setStr(&o.ReplicaSet, fo.ReplicaSet)
	if fo.Port != 0 {
		o.Port = fo.Port
	}
	if fo.Auth != "" {
		o.Auth = AuthType(fo.Auth)
	}
	if fo.Channel != "" {
		o.Channel = ChannelType(fo.Channel)
	}
	if fo.AllowSelfSigned {
		o.AllowSelfSigned = true
	}
	if fo.ConnectTimeout != "" {
		d, err := time.ParseDuration(fo.ConnectTimeout)
		if err != nil {
			return fmt.Errorf("decode config: connect_timeout: %w", err)
		}
		o.ConnectTimeout = d
	}
	o.DatabaseConcerns.Read = ReadConcern(fo.ReadConcern)
	o.DatabaseConcerns.Write = WriteConcern(fo.WriteConcern)
	o.CollectionConcerns.Read = ReadConcern(fo.CollReadConcern)
	o.CollectionConcerns.Write = WriteConcern(fo.CollWriteConcern)
	return nil
}
