package main

import (
	"flag"

	"github.com/golang/glog"
	"github.com/spf13/viper"

	"github.com/prebid/prebid-server-admaru/config"
	"github.com/prebid/prebid-server-admaru/router"
	"github.com/prebid/prebid-server-admaru/server"
)

// Version and Rev hold the build's git tag and revision. Set at build time using:
//
//	go build -ldflags "-X main.Version=`git describe --tags` -X main.Rev=`git rev-parse --short HEAD`"
var (
	Version string
	Rev     string
)

func main() {
	flag.Parse() // required for glog flags and testing package flags

	cfg, err := loadConfig()
	if err != nil {
		glog.Exitf("Configuration could not be loaded or did not pass validation: %v", err)
	}

	err = serve(cfg)
	if err != nil {
		glog.Exitf("prebid-server-admaru failed: %v", err)
	}
}

const configFileName = "pbs"

func loadConfig() (*config.Configuration, error) {
	v := viper.New()
	config.SetupViper(v, configFileName)
	return config.New(v)
}

func serve(cfg *config.Configuration) error {
	r, err := router.New(cfg)
	if err != nil {
		return err
	}

	corsRouter := router.SupportCORS(r)
	server.Listen(cfg, router.NoCache{Handler: corsRouter}, router.Admin(Version, Rev), r.MetricsEngine)

	r.Shutdown()
	return nil
}
