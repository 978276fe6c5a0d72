package definition

import (
	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// DefaultConfiguration builds a configuration with sane local-testing
// defaults for the given peer type.
func DefaultConfiguration(ptype string) *types.PeerConfiguration {
	return &types.PeerConfiguration{
		Type:         ptype,
		Bind:         types.Address{Host: "localhost", Port: 0},
		NameService:  types.Address{Host: "localhost", Port: 4242},
		DatabasePath: "fortunes.db",
		Logger:       NewDefaultLogger(ptype),
	}
}

// LoadConfiguration merges an optional config file into conf. Known
// keys: type, bind, name_service, database, metrics, debug. Addresses
// are "host:port" strings. Values already present in the file win over
// the defaults; flag handling on top of this is the commands' job.
func LoadConfiguration(path string, conf *types.PeerConfiguration) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "reading configuration %s", path)
	}

	if v.IsSet("type") {
		conf.Type = v.GetString("type")
	}
	if v.IsSet("bind") {
		addr, err := types.ParseAddress(v.GetString("bind"))
		if err != nil {
			return err
		}
		conf.Bind = addr
	}
	if v.IsSet("name_service") {
		addr, err := types.ParseAddress(v.GetString("name_service"))
		if err != nil {
			return err
		}
		conf.NameService = addr
	}
	if v.IsSet("database") {
		conf.DatabasePath = v.GetString("database")
	}
	if v.IsSet("metrics") {
		conf.MetricsBind = v.GetString("metrics")
	}
	if v.IsSet("debug") {
		conf.Debug = v.GetBool("debug")
	}
	return nil
}
