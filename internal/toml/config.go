package toml

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/amz.v3/aws"
	"gopkg.in/amz.v3/s3"

	_tls "github.com/glauth/nslcd/internal/tls"
	"github.com/glauth/nslcd/pkg/config"
	"github.com/glauth/nslcd/pkg/expr"
)

// NewConfig reads the config from location, applies the cli flags on top,
// fills in defaults and validates the result
func NewConfig(location string, args map[string]interface{}) (*config.Config, error) {
	cfg, err := parseConfigFile(location, args)
	if err != nil {
		return nil, err
	}
	cfg.ConfigFile = location

	cfg, err = handleArgs(cfg, args)
	if err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	return validateConfig(cfg)
}

func parseConfigFile(configFileLocation string, args map[string]interface{}) (*config.Config, error) {
	cfg := new(config.Config)

	if strings.HasPrefix(configFileLocation, "s3://") {
		tomlData, err := fetchS3(configFileLocation, args)
		if err != nil {
			return cfg, err
		}
		if _, err := toml.Decode(string(tomlData), cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	fInfo, err := os.Stat(configFileLocation)
	if err != nil {
		return cfg, fmt.Errorf("non-existent config path: %s", configFileLocation)
	}

	if !fInfo.IsDir() {
		_, err = toml.DecodeFile(configFileLocation, cfg)
		return cfg, err
	}

	// multiple files in a directory, merged in name order
	rawCfgStruct := make(map[string]interface{})

	files, err := os.ReadDir(configFileLocation)
	if err != nil {
		return cfg, err
	}
	for _, f := range files {
		if f.IsDir() || !isConfigFragment(f.Name()) {
			continue
		}
		canonicalName := filepath.Join(configFileLocation, f.Name())

		bs, err := os.ReadFile(canonicalName)
		if err != nil {
			return cfg, err
		}
		curRawCfgStruct := make(map[string]interface{})
		if err := toml.Unmarshal(bs, &curRawCfgStruct); err != nil {
			return cfg, fmt.Errorf("%s: %w", canonicalName, err)
		}
		mergeConfigs(rawCfgStruct, curRawCfgStruct)
	}

	destbuf := new(bytes.Buffer)
	if err := toml.NewEncoder(destbuf).Encode(rawCfgStruct); err != nil {
		return cfg, err
	}
	if _, err := toml.Decode(destbuf.String(), cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func isConfigFragment(name string) bool {
	switch filepath.Ext(name) {
	case ".toml", ".cfg":
		return true
	}
	return false
}

func fetchS3(location string, args map[string]interface{}) ([]byte, error) {
	regionName, _ := args["-r"].(string)
	region, present := aws.Regions[regionName]
	if endpoint, ok := args["--aws_endpoint_url"].(string); ok && endpoint != "" {
		region = aws.Region{
			Name:       "User defined",
			S3Endpoint: endpoint,
		}
		present = true
	}
	if !present {
		return nil, fmt.Errorf("invalid AWS region: %s", regionName)
	}

	auth, err := aws.EnvAuth()
	if err != nil {
		key, _ := args["-K"].(string)
		secret, _ := args["-S"].(string)
		if key == "" || secret == "" {
			return nil, fmt.Errorf("AWS credentials not found: must use -K and -S flags, or set these env vars:\n\texport AWS_ACCESS_KEY_ID=\"AAA...\"\n\texport AWS_SECRET_ACCESS_KEY=\"BBBB...\"\n")
		}
		auth = aws.Auth{
			AccessKey: key,
			SecretKey: secret,
		}
	}

	s3url := strings.TrimPrefix(location, "s3://")
	parts := strings.SplitN(s3url, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid S3 URL: %s", s3url)
	}

	b, err := s3.New(auth, region).Bucket(parts[0])
	if err != nil {
		return nil, err
	}
	return b.Get(parts[1])
}

// mergeConfigs folds src into dst. Tables are merged key by key, anything
// else in src replaces what dst had.
func mergeConfigs(dst, src map[string]interface{}) {
	for k, v := range src {
		if table, ok := v.(map[string]interface{}); ok {
			if cur, ok := dst[k].(map[string]interface{}); ok {
				mergeConfigs(cur, table)
				continue
			}
		}
		dst[k] = v
	}
}

func handleArgs(cfg *config.Config, args map[string]interface{}) (*config.Config, error) {
	if socket, ok := args["--socket"].(string); ok && socket != "" {
		cfg.Socket.Path = socket
	}

	if debug, ok := args["--debug"].(bool); ok && debug {
		cfg.Debug = true
	}

	return cfg, nil
}

func validateConfig(cfg *config.Config) (*config.Config, error) {
	if len(cfg.LDAP.URIs) == 0 {
		return cfg, fmt.Errorf("no directory server configured: please set [ldap] uris")
	}

	for _, uri := range cfg.LDAP.URIs {
		u, err := url.Parse(uri)
		if err != nil {
			return cfg, fmt.Errorf("invalid directory uri %q: %w", uri, err)
		}
		switch u.Scheme {
		case "ldap", "ldaps", "ldapi":
		default:
			return cfg, fmt.Errorf("invalid directory uri %q: scheme must be ldap, ldaps or ldapi", uri)
		}
	}

	if len(cfg.LDAP.Bases) == 0 {
		return cfg, fmt.Errorf("no search base configured: please set [ldap] bases")
	}

	if cfg.LDAP.RootPwModPW != "" && cfg.LDAP.RootPwModDN == "" {
		return cfg, fmt.Errorf("rootpwmodpw was set without rootpwmoddn")
	}

	if cfg.LDAP.PageSize < 0 {
		return cfg, fmt.Errorf("pagesize must not be negative")
	}

	if !_tls.ValidReqCert(cfg.LDAP.TLSReqCert) {
		return cfg, fmt.Errorf("invalid tlsreqcert %q: must be never, allow, try, demand or hard", cfg.LDAP.TLSReqCert)
	}

	if (cfg.LDAP.TLSCert == "") != (cfg.LDAP.TLSKey == "") {
		return cfg, fmt.Errorf("tlscert and tlskey must be set together")
	}

	if _, err := strconv.ParseUint(cfg.Socket.Mode, 8, 32); err != nil {
		return cfg, fmt.Errorf("invalid socket mode %q: must be octal", cfg.Socket.Mode)
	}

	if cfg.PAM.AuthzSearch != "" {
		if err := expr.Parse(cfg.PAM.AuthzSearch); err != nil {
			return cfg, fmt.Errorf("invalid authzsearch: %w", err)
		}
	}

	if cfg.API.Enabled && cfg.API.TLS && (cfg.API.Cert == "" || cfg.API.Key == "") {
		return cfg, fmt.Errorf("API TLS was enabled but no certificate or key were specified")
	}

	return cfg, nil
}
