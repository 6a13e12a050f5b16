package config

import "os"

func IsDebug() bool {
	return os.Getenv("AIDE_DEBUG") == "1"
}
