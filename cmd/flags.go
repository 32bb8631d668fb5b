package cmd

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// mustBind ties a flag to a config key. Viper only errors on a nil flag,
// which is a programming error.
func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind %s: %v", key, err))
	}
}

// bindAll binds each named flag of fs to its config key.
func bindAll(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		mustBind(v, key, fs.Lookup(name))
	}
}
