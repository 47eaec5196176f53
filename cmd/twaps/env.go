package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

const EnvironmentVariablePrefix = "TWAPS_"

// SetFlagsFromEnvVariables sets every flag not given on the command line
// from env variable TWAPS_<FLAG_NAME> e.g. --data-dir => TWAPS_DATA_DIR
func SetFlagsFromEnvVariables(fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || err != nil {
			return
		}
		envVar := flagToEnvVarName(f)
		if val, present := os.LookupEnv(envVar); present {
			if err2 := fs.Set(f.Name, val); err2 != nil {
				err = fmt.Errorf("invalid value '%s' of %s: %w", val, envVar, err2)
			}
		}
	})
	return err
}

func flagToEnvVarName(f *pflag.Flag) string {
	return EnvironmentVariablePrefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
}
