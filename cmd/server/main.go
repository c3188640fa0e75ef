package main

import (
	"log/slog"
	"net/http"

	"github.com/johoo26/myzhihu/internal/app"
	"github.com/johoo26/myzhihu/internal/db"
	httpx "github.com/johoo26/myzhihu/internal/http"
	"github.com/johoo26/myzhihu/internal/mail"
)

func main() {
	cfg := app.LoadConfig()
	d, err := db.Open(cfg.DatabaseURL)
	app.Must(err)
	app.Must(db.Migrate(d))

	var dispatcher mail.Dispatcher = mail.Log{}
	if cfg.SMTPUsername != "" {
		dispatcher = mail.NewSMTP(cfg)
	}

	srv := httpx.NewServer(d, cfg, dispatcher)
	slog.Info("listening", "addr", cfg.Addr)
	app.Must(http.ListenAndServe(cfg.Addr, httpx.WithAccessLog(httpx.WithTimeout(srv))))
}
