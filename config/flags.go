package config

import "flag"

type Flags struct {
	ConfigPath string
	EnvFile    string
	Setup      bool
	SignFile   string
}

// ParseFlags reads the command line.
func ParseFlags() Flags {
	var f Flags
	flag.StringVar(&f.ConfigPath, "config", "vault.yaml", "path to yaml config")
	flag.StringVar(&f.EnvFile, "env", ".env", "file with environment variables")
	flag.BoolVar(&f.Setup, "setup", false, "run the interactive configuration wizard")
	flag.StringVar(&f.SignFile, "sign", "", "sign the json request in this file with "+EnvOwnerKey+" and exit")
	flag.Parse()
	return f
}
