package builder

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/hermez-node/log"
	"github.com/kelseyhightower/envconfig"
	"github.com/mcuadros/go-defaults"
	"github.com/spf13/viper"

	"github.com/mevshield/coordinator/internal/pkg/model"
)

type jobConfig struct {
	Config   model.JobConfig
	Database dbConfig
	Redis    redisConfig
}

type signerConfig struct {
	PrivateKey string `split_words:"true" required:"true"`
}

type apiConfig struct {
	Key string `default:""`
}

func loadJobConfig(file string) (*jobConfig, error) {
	viper.SetConfigFile(file)
	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}
	c := &jobConfig{}
	defaults.SetDefaults(c)
	if err := viper.Unmarshal(c); err != nil {
		return nil, err
	}

	dbConfig, redisCfg, err := LoadEnvConfig()
	if err != nil {
		return nil, err
	}
	c.Database = *dbConfig
	c.Redis = *redisCfg
	c.Config.Contracts.FairOrdering = common.HexToAddress(c.Config.FairOrdering)
	c.Config.Contracts.CommitReveal = common.HexToAddress(c.Config.CommitReveal)

	log.Infof("loaded config for network %s, chain %d", c.Config.Network, c.Config.ChainID)
	return c, nil
}

func LoadEnvConfig() (*dbConfig, *redisConfig, error) {
	var dbCfg dbConfig
	if err := envconfig.Process("DB", &dbCfg); err != nil {
		return nil, nil, err
	}

	var redisCfg redisConfig
	if err := envconfig.Process("REDIS", &redisCfg); err != nil {
		return nil, nil, err
	}

	return &dbCfg, &redisCfg, nil
}

func loadSignerKey() (*ecdsa.PrivateKey, error) {
	var cfg signerConfig
	if err := envconfig.Process("SIGNER", &cfg); err != nil {
		return nil, err
	}
	return crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
}

func loadAPIConfig() (*apiConfig, error) {
	var cfg apiConfig
	if err := envconfig.Process("API", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
