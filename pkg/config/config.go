package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/spf13/pflag"
)

type Config struct {
	Debug      bool
	Auth       Auth
	Client     Client
	Session    Session
	Signaling  Signaling
	Catalog    Catalog
	Webrtc     Webrtc
	Storage    Storage
	Monitoring Monitoring
}

type Auth struct {
	ClientID        string        `check:"required" default:"ZU7sPN-miLujMD95LfOQ453IB0AtjM8sMyvgJ9wCXEQ"`
	AuthorizeURL    string        `check:"required,url" default:"https://login.nvidia.com/authorize"`
	TokenURL        string        `check:"required,url" default:"https://login.nvidia.com/token"`
	UserinfoURL     string        `check:"required,url" default:"https://login.nvidia.com/userinfo"`
	RedirectURI     string        `check:"required,url" default:"http://localhost:2259"`
	Scopes          []string      `default:"[openid,consent,email,tk_client,age]"`
	ProvidersURL    string        `check:"omitempty,url" default:"https://pcs.geforcenow.com/v1/serviceUrls"`
	SubscriptionURL string        `check:"omitempty,url" default:"https://mes.geforcenow.com/v4/subscriptions"`
	Locale          string        `default:"en_US"`
	HTTPTimeout     time.Duration `default:"15s"`
	DefaultProvider Provider
}

type Provider struct {
	IdpID            string `default:"PDiAhv2kJTFeQ7WOPqiQ2tRZ7lGhR2X11dXvM4TZSxg"`
	Code             string `default:"NVIDIA"`
	DisplayName      string `default:"NVIDIA"`
	StreamingBaseURL string `check:"required,url" default:"https://prod.cloudmatchbeta.nvidiagrid.net/"`
}

// Client has the identity sent along with every session request.
type Client struct {
	ID         string `default:"ec7e38d4-03af-4b58-b131-cfb0495903ab"`
	Type       string `default:"NATIVE"`
	Version    string `default:"2.0.80.173"`
	DeviceOS   string `default:"LINUX"`
	DeviceType string `default:"DESKTOP"`
	UserAgent  string `default:"opencloud/1.0"`
	DeviceID   string
}

type Session struct {
	ClaimAttempts int           `check:"min=1" default:"15"`
	ClaimDelay    time.Duration `default:"2s"`
	PollInterval  time.Duration `default:"2s"`
	PollTimeout   time.Duration `default:"5m"`
	HTTPTimeout   time.Duration `default:"20s"`
}

type Signaling struct {
	Heartbeat        time.Duration `default:"5s"`
	HandshakeTimeout time.Duration `default:"10s"`
	LocalPeerID      int           `check:"min=1" default:"2"`
	RemotePeerID     int           `check:"min=1" default:"1"`
	// the servers are addressed by IP, so the certificate names won't match
	InsecureTLS bool `default:"true"`
}

type Catalog struct {
	URL string `check:"omitempty,url" default:"https://static.nvidiagrid.net/supported-public-game-list/locales/gfnpc-en-US.json"`
}

type Webrtc struct {
	DisableDefaultInterceptors bool
	IceServers                 []IceServer
	LogLevel                   int `default:"1"`
}

type IceServer struct {
	Urls       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

type Storage struct {
	Dir string
}

type Monitoring struct {
	Port             int
	URLPrefix        string `default:"/opencloud"`
	MetricEnabled    bool
	ProfilingEnabled bool
}

func (m Monitoring) IsEnabled() bool { return m.Port > 0 && (m.MetricEnabled || m.ProfilingEnabled) }

var validate = func() *validator.Validate {
	v := validator.New()
	v.SetTagName("check")
	return v
}()

// Validate checks the config values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// fixValues sets derived values.
func (c *Config) fixValues() {
	if c.Client.DeviceID == "" {
		c.Client.DeviceID = uuid.Must(uuid.NewV4()).String()
	}
	if !strings.HasSuffix(c.Auth.DefaultProvider.StreamingBaseURL, "/") {
		c.Auth.DefaultProvider.StreamingBaseURL += "/"
	}
}

type flags struct {
	path       string
	debug      bool
	storageDir string
	monitoring int
	metrics    bool
}

// NewConfig reads the config from the file at path (or the default places).
func NewConfig(path string) (conf Config, err error) {
	if err = LoadConfig(&conf, path); err != nil {
		return
	}
	conf.fixValues()
	err = conf.Validate()
	return
}

// ParseFlags loads the config with the command line overrides
// and returns the rest of the non-flag arguments.
// The flags are: -c/--conf, --debug, --store, --monitoring.port, --monitoring.metrics.
func ParseFlags(args []string) (Config, []string, error) {
	var f flags
	fs := pflag.NewFlagSet("opencloud", pflag.ContinueOnError)
	fs.StringVarP(&f.path, "conf", "c", "", "Set custom configuration file path")
	fs.BoolVarP(&f.debug, "debug", "d", false, "Enable debug logs")
	fs.StringVar(&f.storageDir, "store", "", "Directory for the persisted state")
	fs.IntVar(&f.monitoring, "monitoring.port", 0, "Monitoring server port")
	fs.BoolVar(&f.metrics, "monitoring.metrics", false, "Enable Prometheus metrics")
	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}
	conf, err := NewConfig(f.path)
	if err != nil {
		return conf, nil, err
	}
	if fs.Changed("debug") {
		conf.Debug = f.debug
	}
	if fs.Changed("store") {
		conf.Storage.Dir = f.storageDir
	}
	if fs.Changed("monitoring.port") {
		conf.Monitoring.Port = f.monitoring
	}
	if fs.Changed("monitoring.metrics") {
		conf.Monitoring.MetricEnabled = f.metrics
	}
	return conf, fs.Args(), nil
}
