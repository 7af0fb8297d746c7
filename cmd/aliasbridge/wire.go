package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/CrimsonAS/aliasbridge/apicache"
	"github.com/CrimsonAS/aliasbridge/client"
	"github.com/CrimsonAS/aliasbridge/wire"
)

const (
	configName = "aliasbridge"
	envPrefix  = "ALIASBRIDGE"
)

// defaults is both the viper default set and the file written by
// "config init".
var defaults = map[string]map[string]interface{}{
	"server": {
		"addr":      "127.0.0.1:8765",
		"namespace": wire.DefaultNamespace,
	},
	"client": {
		"timeout":       client.DefaultTimeout.String(),
		"pump_interval": client.DefaultPumpInterval.String(),
	},
	"wire": {
		"codec": wire.JSON.Name(),
	},
	"cache": {
		"dir": "",
	},
	"log": {
		"verbosity": 1,
	},
}

type app struct {
	v          *viper.Viper
	configFile string
}

func wireApp() *app {
	v := viper.New()
	for section, keys := range defaults {
		for key, value := range keys {
			v.SetDefault(section+"."+key, value)
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &app{v: v}
}

// load reads the config file, if there is one, and configures logging.
func (a *app) load() error {
	if a.configFile != "" {
		a.v.SetConfigFile(a.configFile)
	} else {
		a.v.SetConfigName(configName)
		a.v.SetConfigType("toml")
		a.v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			a.v.AddConfigPath(filepath.Join(dir, configName))
		}
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	commonlog.Configure(a.v.GetInt("log.verbosity"), nil)
	return nil
}

func (a *app) codec() (wire.Codec, error) {
	return wire.CodecByName(a.v.GetString("wire.codec"))
}

func (a *app) duration(key string) (time.Duration, error) {
	d, err := cast.ToDurationE(a.v.Get(key))
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config %s: must be positive, got %s", key, d)
	}
	return d, nil
}

func (a *app) cache() (*apicache.Store, error) {
	dir := a.v.GetString("cache.dir")
	if dir == "" {
		var err error
		if dir, err = apicache.DefaultDir(); err != nil {
			return nil, fmt.Errorf("resolve cache directory: %w", err)
		}
	}
	return apicache.New(dir), nil
}

// url turns the configured server address into a websocket url.
func (a *app) url() string {
	addr := a.v.GetString("server.addr")
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	return "ws://" + addr + "/"
}

// dial connects a client and loads the host API.
func (a *app) dial(ctx context.Context) (*client.Client, *client.Module, error) {
	codec, err := a.codec()
	if err != nil {
		return nil, nil, err
	}
	timeout, err := a.duration("client.timeout")
	if err != nil {
		return nil, nil, err
	}
	pump, err := a.duration("client.pump_interval")
	if err != nil {
		return nil, nil, err
	}
	store, err := a.cache()
	if err != nil {
		return nil, nil, err
	}

	c, err := client.Dial(ctx, a.url(), codec,
		client.WithNamespace(a.v.GetString("server.namespace")),
		client.WithTimeout(timeout),
		client.WithPumpInterval(pump),
		client.WithCache(store))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", a.url(), err)
	}
	mod, err := c.GetAPI(ctx)
	if err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("load API: %w", err)
	}
	return c, mod, nil
}

// settings returns the effective configuration, one "key = value" line per
// key.
func (a *app) settings() []string {
	keys := a.v.AllKeys()
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s = %v", key, a.v.Get(key)))
	}
	return lines
}
