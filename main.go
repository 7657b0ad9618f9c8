package main

import (
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ekamilov/suggestify/bot"
	"github.com/ekamilov/suggestify/config"
	"github.com/ekamilov/suggestify/db"
	"github.com/ekamilov/suggestify/resolver"
)

func main() {
	// .env is for local runs; absent in production.
	_ = godotenv.Load()

	log := logrus.WithField("at", "main")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("cannot load config")
	}

	store, err := db.Open(cfg.DBDriver, cfg.DSN)
	if err != nil {
		log.WithError(err).Fatal("cannot open submission store")
	}
	defer store.Close()

	cookieFile, err := cfg.WriteCookiesFile()
	if err != nil {
		log.WithError(err).Fatal("cannot write cookies file")
	}

	res := resolver.New(resolver.Options{
		ProxyBase:  cfg.ProxyAPIBase,
		CookieFile: cookieFile,
		AudDToken:  cfg.AudDToken,
	})

	b, err := bot.New(cfg, store, res)
	if err != nil {
		log.WithError(err).Fatal("cannot start bot")
	}
	if err := b.Run(); err != nil {
		log.WithError(err).Fatal("bot stopped")
	}
}
