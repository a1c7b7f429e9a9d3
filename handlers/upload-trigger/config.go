package main

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// config is the handler environment set by the deployment program.
type config struct {
	StateMachineArn string `mapstructure:"STATE_MACHINE_ARN"`
	TableName       string `mapstructure:"DDB_TABLE"`
}

func loadConfig(environ []string) (config, error) {
	env := make(map[string]interface{}, len(environ))
	for _, kv := range environ {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			env[parts[0]] = parts[1]
		}
	}

	var cfg config
	if err := mapstructure.Decode(env, &cfg); err != nil {
		return config{}, errors.Wrap(err, "decode environment")
	}
	if cfg.StateMachineArn == "" {
		return config{}, errors.New("STATE_MACHINE_ARN is not set")
	}
	if cfg.TableName == "" {
		return config{}, errors.New("DDB_TABLE is not set")
	}
	return cfg, nil
}
