package main

import (
	"github.com/danmuck/replctl/internal/config"
	"github.com/danmuck/replctl/internal/observability"
	"github.com/rs/zerolog/log"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	kind     = kingpin.Flag("kind", "config kind: server|client").Default(config.KindServer).Enum(config.KindServer, config.KindClient)
	output   = kingpin.Flag("output", "output path for config template").String()
	validate = kingpin.Flag("validate", "validate an existing config file").Bool()
	input    = kingpin.Flag("input", "config path for validation (defaults to per-kind cmd path)").String()
	force    = kingpin.Flag("force", "overwrite existing config file").Bool()
)

func defaultPath(kind string) string {
	if kind == config.KindClient {
		return "cmd/replclient/config.toml"
	}
	return "cmd/replctl/config.toml"
}

func main() {
	kingpin.Parse()
	observability.InitLogger("configgen")

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		if err := config.Load(*kind, path); err != nil {
			log.Fatal().Msgf("configgen validate kind=%s path=%q err=%v", *kind, path, err)
		}
		log.Info().Msgf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Msgf("configgen write kind=%s path=%q err=%v", *kind, target, err)
	}
	log.Info().Msgf("Wrote %s config template to %s", *kind, target)
}
