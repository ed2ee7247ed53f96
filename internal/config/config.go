package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Config is the full livelist configuration.
//
// INI format:
//
//	[backend]
//	kind = http
//	url = https://records.example.com
//	api_key = <token>
//
//	[proxy]
//	mode = no-proxy
//
//	[defaults]
//	refresh_interval_ms = 2000
//	chunk_size = 50
//
//	[list.artists]
//	title = Artists
//	identity = id
//	primary = name
//	fields = name:Name:text:3, plays:Plays:text:1
//	link = albums
//	link_fields = artist
//
//	[list.albums]
//	identity = id
//	primary = title
//	fields = title:Title:text:3, progress::progress:1
//	filter = artist
//	mode = chunked
type Config struct {
	Backend  BackendConfig
	Proxy    ProxyConfig
	Defaults DefaultsConfig
	Lists    []ListConfig // in file order
}

// BackendConfig selects and parameterizes the record query backend.
type BackendConfig struct {
	Kind string // memory, http, s3, azure, sqlite

	// http
	URL       string
	APIKey    string
	RateLimit float64 // queries per second, 0 uses the default

	// s3
	Bucket    string
	Region    string
	Endpoint  string // custom endpoint for S3-compatible stores
	AccessKey string
	SecretKey string

	// azure
	Account    string
	AccountKey string
	Container  string
	SASURL     string

	// s3 and azure
	Prefix string

	// sqlite
	Path string

	TimeoutSeconds int
	MaxRetries     int
}

// ProxyConfig holds outbound proxy settings for network backends.
type ProxyConfig struct {
	Mode     string // "no-proxy", "system", "basic", "ntlm"
	Host     string
	Port     int
	User     string
	Password string
	NoProxy  string // Comma-separated list of hosts to bypass proxy
	Warmup   bool
}

// DefaultsConfig holds values applied to lists that do not set their own.
type DefaultsConfig struct {
	RefreshIntervalMS int
	ChunkSize         int
	DeferFirstFetch   bool
}

// ListConfig is the declarative form of one list.
type ListConfig struct {
	Name            string
	Title           string
	Identity        string
	Primary         string
	Fields          []FieldConfig
	Filter          []string
	Link            string
	LinkFields      []string
	Mode            string // "continuous" or "chunked"
	ChunkSize       int
	RefreshMS       int
	DeferFirstFetch bool
	Detail          string
	Sources         []string
	Kinds           []string
	OrderBy         string
	Actions         []string
}

// FieldConfig describes one displayed column.
type FieldConfig struct {
	Name      string
	Title     string
	Display   string // "text" or "progress"
	Weight    int
	Transform string // name of a registered value transform
}

// Backend kinds
const (
	BackendMemory = "memory"
	BackendHTTP   = "http"
	BackendS3     = "s3"
	BackendAzure  = "azure"
	BackendSQLite = "sqlite"
)

// List modes
const (
	ModeContinuous = "continuous"
	ModeChunked    = "chunked"
)

const listSectionPrefix = "list."

// Validation errors
var (
	ErrUnknownBackend      = errors.New("backend kind must be one of memory, http, s3, azure, sqlite")
	ErrMissingURL          = errors.New("url is required for the http backend")
	ErrMissingBucket       = errors.New("bucket is required for the s3 backend")
	ErrMissingContainer    = errors.New("container or sas_url is required for the azure backend")
	ErrMissingDatabasePath = errors.New("path is required for the sqlite backend")
	ErrUnknownProxyMode    = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost    = errors.New("proxy host is required for basic and ntlm modes")
	ErrMissingIdentity     = errors.New("identity is required")
	ErrMissingFields       = errors.New("at least one field is required")
	ErrDuplicateList       = errors.New("duplicate list name")
	ErrUnknownLink         = errors.New("link names an unknown list")
	ErrMissingLinkFields   = errors.New("link_fields is required when link is set")
	ErrUnknownMode         = errors.New("mode must be continuous or chunked")
	ErrInvalidChunkSize    = errors.New("chunk_size must not be negative")
	ErrInvalidDisplay      = errors.New("field display must be text or progress")
)

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Backend: BackendConfig{
			Kind:           BackendMemory,
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		Proxy: ProxyConfig{
			Mode: "no-proxy",
		},
		Defaults: DefaultsConfig{
			RefreshIntervalMS: 2000,
		},
	}
}

// Load loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return parse(iniFile, cfg)
}

// LoadBytes parses configuration from INI text.
func LoadBytes(data []byte) (*Config, error) {
	iniFile, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return parse(iniFile, New())
}

func parse(iniFile *ini.File, cfg *Config) (*Config, error) {
	backend := iniFile.Section("backend")
	cfg.Backend.Kind = strings.ToLower(backend.Key("kind").MustString(cfg.Backend.Kind))
	cfg.Backend.URL = backend.Key("url").String()
	cfg.Backend.APIKey = backend.Key("api_key").String()
	cfg.Backend.RateLimit = backend.Key("rate_limit").MustFloat64(0)
	cfg.Backend.Bucket = backend.Key("bucket").String()
	cfg.Backend.Region = backend.Key("region").MustString("us-east-1")
	cfg.Backend.Endpoint = backend.Key("endpoint").String()
	cfg.Backend.AccessKey = backend.Key("access_key").String()
	cfg.Backend.SecretKey = backend.Key("secret_key").String()
	cfg.Backend.Account = backend.Key("account").String()
	cfg.Backend.AccountKey = backend.Key("account_key").String()
	cfg.Backend.Container = backend.Key("container").String()
	cfg.Backend.SASURL = backend.Key("sas_url").String()
	cfg.Backend.Prefix = backend.Key("prefix").String()
	cfg.Backend.Path = backend.Key("path").String()
	cfg.Backend.TimeoutSeconds = backend.Key("timeout_seconds").MustInt(cfg.Backend.TimeoutSeconds)
	cfg.Backend.MaxRetries = backend.Key("max_retries").MustInt(cfg.Backend.MaxRetries)

	proxy := iniFile.Section("proxy")
	cfg.Proxy.Mode = strings.ToLower(proxy.Key("mode").MustString(cfg.Proxy.Mode))
	cfg.Proxy.Host = proxy.Key("host").String()
	cfg.Proxy.Port = proxy.Key("port").MustInt(0)
	cfg.Proxy.User = proxy.Key("user").String()
	// Proxy passwords are accepted here but never written back by Save
	cfg.Proxy.Password = proxy.Key("password").String()
	cfg.Proxy.NoProxy = proxy.Key("no_proxy").String()
	cfg.Proxy.Warmup = proxy.Key("warmup").MustBool(false)

	defaults := iniFile.Section("defaults")
	cfg.Defaults.RefreshIntervalMS = defaults.Key("refresh_interval_ms").MustInt(cfg.Defaults.RefreshIntervalMS)
	cfg.Defaults.ChunkSize = defaults.Key("chunk_size").MustInt(cfg.Defaults.ChunkSize)
	cfg.Defaults.DeferFirstFetch = defaults.Key("defer_first_fetch").MustBool(false)

	for _, section := range iniFile.Sections() {
		if !strings.HasPrefix(section.Name(), listSectionPrefix) {
			continue
		}
		name := strings.TrimPrefix(section.Name(), listSectionPrefix)

		fields, err := ParseFields(section.Key("fields").String())
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", name, err)
		}

		lc := ListConfig{
			Name:            name,
			Title:           section.Key("title").MustString(name),
			Identity:        section.Key("identity").String(),
			Primary:         section.Key("primary").String(),
			Fields:          fields,
			Filter:          section.Key("filter").Strings(","),
			Link:            section.Key("link").String(),
			LinkFields:      section.Key("link_fields").Strings(","),
			Mode:            strings.ToLower(section.Key("mode").MustString(ModeContinuous)),
			ChunkSize:       section.Key("chunk_size").MustInt(cfg.Defaults.ChunkSize),
			RefreshMS:       section.Key("refresh_ms").MustInt(cfg.Defaults.RefreshIntervalMS),
			DeferFirstFetch: section.Key("defer_first_fetch").MustBool(cfg.Defaults.DeferFirstFetch),
			Detail:          section.Key("detail").String(),
			Sources:         section.Key("sources").Strings(","),
			Kinds:           section.Key("kinds").Strings(","),
			OrderBy:         section.Key("order_by").String(),
			Actions:         section.Key("actions").Strings(","),
		}
		if lc.Primary == "" && len(lc.Fields) > 0 {
			lc.Primary = lc.Fields[0].Name
		}
		cfg.Lists = append(cfg.Lists, lc)
	}

	return cfg, nil
}

// ParseFields parses a field list of the form
// "name[:title[:display[:weight[:transform]]]], ...".
func ParseFields(s string) ([]FieldConfig, error) {
	var fields []FieldConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pieces := strings.Split(part, ":")
		fc := FieldConfig{
			Name:    strings.TrimSpace(pieces[0]),
			Display: "text",
			Weight:  1,
		}
		if len(pieces) > 1 {
			fc.Title = strings.TrimSpace(pieces[1])
		}
		if len(pieces) > 2 && strings.TrimSpace(pieces[2]) != "" {
			fc.Display = strings.ToLower(strings.TrimSpace(pieces[2]))
		}
		if len(pieces) > 3 && strings.TrimSpace(pieces[3]) != "" {
			w, err := strconv.Atoi(strings.TrimSpace(pieces[3]))
			if err != nil || w <= 0 {
				return nil, fmt.Errorf("invalid weight %q for field %s", pieces[3], fc.Name)
			}
			fc.Weight = w
		}
		if len(pieces) > 4 {
			fc.Transform = strings.TrimSpace(pieces[4])
		}
		if fc.Name == "" {
			return nil, fmt.Errorf("empty field name in %q", part)
		}
		fields = append(fields, fc)
	}
	return fields, nil
}

// FormatFields is the inverse of ParseFields.
func FormatFields(fields []FieldConfig) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		part := fmt.Sprintf("%s:%s:%s:%d", f.Name, f.Title, f.Display, f.Weight)
		if f.Transform != "" {
			part += ":" + f.Transform
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

// Save saves configuration to an INI file.
// Creates parent directories if they don't exist. The proxy password is never written.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	backend, err := iniFile.NewSection("backend")
	if err != nil {
		return fmt.Errorf("failed to create backend section: %w", err)
	}
	setIfNotEmpty(backend, "kind", cfg.Backend.Kind)
	setIfNotEmpty(backend, "url", cfg.Backend.URL)
	setIfNotEmpty(backend, "api_key", cfg.Backend.APIKey)
	if cfg.Backend.RateLimit > 0 {
		backend.Key("rate_limit").SetValue(strconv.FormatFloat(cfg.Backend.RateLimit, 'f', -1, 64))
	}
	setIfNotEmpty(backend, "bucket", cfg.Backend.Bucket)
	setIfNotEmpty(backend, "region", cfg.Backend.Region)
	setIfNotEmpty(backend, "endpoint", cfg.Backend.Endpoint)
	setIfNotEmpty(backend, "access_key", cfg.Backend.AccessKey)
	setIfNotEmpty(backend, "secret_key", cfg.Backend.SecretKey)
	setIfNotEmpty(backend, "account", cfg.Backend.Account)
	setIfNotEmpty(backend, "account_key", cfg.Backend.AccountKey)
	setIfNotEmpty(backend, "container", cfg.Backend.Container)
	setIfNotEmpty(backend, "sas_url", cfg.Backend.SASURL)
	setIfNotEmpty(backend, "prefix", cfg.Backend.Prefix)
	setIfNotEmpty(backend, "path", cfg.Backend.Path)
	backend.Key("timeout_seconds").SetValue(strconv.Itoa(cfg.Backend.TimeoutSeconds))
	backend.Key("max_retries").SetValue(strconv.Itoa(cfg.Backend.MaxRetries))

	proxy, err := iniFile.NewSection("proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	proxy.Key("mode").SetValue(cfg.Proxy.Mode)
	setIfNotEmpty(proxy, "host", cfg.Proxy.Host)
	if cfg.Proxy.Port > 0 {
		proxy.Key("port").SetValue(strconv.Itoa(cfg.Proxy.Port))
	}
	setIfNotEmpty(proxy, "user", cfg.Proxy.User)
	setIfNotEmpty(proxy, "no_proxy", cfg.Proxy.NoProxy)
	proxy.Key("warmup").SetValue(strconv.FormatBool(cfg.Proxy.Warmup))

	defaults, err := iniFile.NewSection("defaults")
	if err != nil {
		return fmt.Errorf("failed to create defaults section: %w", err)
	}
	defaults.Key("refresh_interval_ms").SetValue(strconv.Itoa(cfg.Defaults.RefreshIntervalMS))
	defaults.Key("chunk_size").SetValue(strconv.Itoa(cfg.Defaults.ChunkSize))
	defaults.Key("defer_first_fetch").SetValue(strconv.FormatBool(cfg.Defaults.DeferFirstFetch))

	for _, lc := range cfg.Lists {
		section, err := iniFile.NewSection(listSectionPrefix + lc.Name)
		if err != nil {
			return fmt.Errorf("failed to create list section %s: %w", lc.Name, err)
		}
		setIfNotEmpty(section, "title", lc.Title)
		section.Key("identity").SetValue(lc.Identity)
		setIfNotEmpty(section, "primary", lc.Primary)
		section.Key("fields").SetValue(FormatFields(lc.Fields))
		setIfNotEmpty(section, "filter", strings.Join(lc.Filter, ","))
		setIfNotEmpty(section, "link", lc.Link)
		setIfNotEmpty(section, "link_fields", strings.Join(lc.LinkFields, ","))
		setIfNotEmpty(section, "mode", lc.Mode)
		section.Key("chunk_size").SetValue(strconv.Itoa(lc.ChunkSize))
		section.Key("refresh_ms").SetValue(strconv.Itoa(lc.RefreshMS))
		section.Key("defer_first_fetch").SetValue(strconv.FormatBool(lc.DeferFirstFetch))
		setIfNotEmpty(section, "detail", lc.Detail)
		setIfNotEmpty(section, "sources", strings.Join(lc.Sources, ","))
		setIfNotEmpty(section, "kinds", strings.Join(lc.Kinds, ","))
		setIfNotEmpty(section, "order_by", lc.OrderBy)
		setIfNotEmpty(section, "actions", strings.Join(lc.Actions, ","))
	}

	// Use temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// Credentials may be stored in the file
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

func setIfNotEmpty(section *ini.Section, key, value string) {
	if value != "" {
		section.Key(key).SetValue(value)
	}
}

// List returns the list configuration with the given name.
func (cfg *Config) List(name string) (ListConfig, bool) {
	for _, lc := range cfg.Lists {
		if lc.Name == name {
			return lc, true
		}
	}
	return ListConfig{}, false
}

// Validate checks the backend, proxy and list sections.
// Returns nil if valid, or an error describing what's wrong.
func (cfg *Config) Validate() error {
	if err := cfg.Backend.Validate(); err != nil {
		return err
	}

	switch cfg.Proxy.Mode {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if strings.TrimSpace(cfg.Proxy.Host) == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrUnknownProxyMode
	}

	seen := make(map[string]bool, len(cfg.Lists))
	for _, lc := range cfg.Lists {
		if seen[lc.Name] {
			return fmt.Errorf("list %s: %w", lc.Name, ErrDuplicateList)
		}
		seen[lc.Name] = true
	}

	for _, lc := range cfg.Lists {
		if err := lc.validate(seen); err != nil {
			return fmt.Errorf("list %s: %w", lc.Name, err)
		}
	}

	return nil
}

// Validate checks that the selected backend has what it needs.
func (b *BackendConfig) Validate() error {
	switch b.Kind {
	case BackendMemory:
	case BackendHTTP:
		if strings.TrimSpace(b.URL) == "" {
			return ErrMissingURL
		}
	case BackendS3:
		if strings.TrimSpace(b.Bucket) == "" {
			return ErrMissingBucket
		}
	case BackendAzure:
		if strings.TrimSpace(b.Container) == "" && strings.TrimSpace(b.SASURL) == "" {
			return ErrMissingContainer
		}
	case BackendSQLite:
		if strings.TrimSpace(b.Path) == "" {
			return ErrMissingDatabasePath
		}
	default:
		return ErrUnknownBackend
	}
	return nil
}

func (lc *ListConfig) validate(known map[string]bool) error {
	if strings.TrimSpace(lc.Identity) == "" {
		return ErrMissingIdentity
	}
	if len(lc.Fields) == 0 {
		return ErrMissingFields
	}
	for _, f := range lc.Fields {
		if f.Display != "text" && f.Display != "progress" {
			return fmt.Errorf("field %s: %w", f.Name, ErrInvalidDisplay)
		}
	}
	if lc.Link != "" {
		if !known[lc.Link] {
			return ErrUnknownLink
		}
		if len(lc.LinkFields) == 0 {
			return ErrMissingLinkFields
		}
	}
	if lc.Mode != ModeContinuous && lc.Mode != ModeChunked {
		return ErrUnknownMode
	}
	if lc.ChunkSize < 0 {
		return ErrInvalidChunkSize
	}
	return nil
}
