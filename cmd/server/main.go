package main

import (
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/71e6fd52/bk2d-server/internal/config"
	"github.com/71e6fd52/bk2d-server/internal/engine"
	"github.com/71e6fd52/bk2d-server/internal/server"
)

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("configuration error")
		os.Exit(1)
	}
	log.SetLevel(cfg.LogLevel)

	eng := engine.New(engine.Config{
		InboxSize:   cfg.InboxSize,
		MailboxSize: cfg.MailboxSize,
	}, log)
	go eng.Run()

	srv := server.New(eng, log)
	log.WithField("addr", cfg.Addr).Info("listening")
	if err := http.ListenAndServe(cfg.Addr, srv.Routes()); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}
